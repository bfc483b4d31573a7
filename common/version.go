// Copyright © 2017 DataMovement Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

// EngineVersion is the semantic version embedded in the journal's format-version
// string and the outgoing User-Agent header.
const EngineVersion = "1.0.0"

// UserAgent identifies this engine to the remote store, the way AzCopy stamps
// "AzCopy/<version>" onto every request.
const UserAgent = "DataMovement/" + EngineVersion

// FormatVersion is written into bytes [0,256) of every stream journal. It pairs
// an assembly identity with the semver above, so a reader can gate compatibility
// at open time without touching the rest of the header.
const FormatVersion = "github.com/datamovement/dmcore/" + EngineVersion

// MaxRelativePathLength is the 1024-character relative-path limit. No code path in
// this module checks it; entries are enqueued whatever their relative-path length.
const MaxRelativePathLength = 1024
