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

// Package enumerate implements C5: lazy, restartable sequences of entries from a
// source root, §4.3.
package enumerate

import (
	"context"

	"github.com/datamovement/dmcore/blobclient"
	"github.com/datamovement/dmcore/continuation"
)

// EntryKind discriminates the Entry union of §4.3.
type EntryKind uint8

const (
	EntryFile EntryKind = iota
	EntryDirectory
	EntryError
)

// Entry is the FileEntry | DirectoryEntry | ErrorEntry union. Exactly the field set
// implied by Kind is meaningful.
type Entry struct {
	Kind     EntryKind
	RelPath  string
	FullPath string
	Size     int64 // FileEntry only; -1 when unknown
	Metadata blobclient.Metadata // FileEntry, or DirectoryEntry for a remote folder marker; populated for remote entries
	Err      error // ErrorEntry only
}

// Enumerator produces entries lazily and restartably from a source root, §4.3.
// Ordering is deterministic (lexicographic within a directory level); a hierarchical
// enumerator additionally yields DirectoryEntry so its caller can recurse one level
// at a time.
type Enumerator interface {
	// Next returns the next entry, or ok=false once the enumerator is exhausted.
	Next(ctx context.Context) (entry Entry, ok bool, err error)

	// ContinuationToken captures enough state that a fresh Enumerator constructed
	// with it resumes exactly where Next left off, per the resume invariant of §4.3.
	ContinuationToken() continuation.Token

	SearchPattern() string
	Recursive() bool
	FollowSymlink() bool
}
