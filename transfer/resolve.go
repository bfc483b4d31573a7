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

package transfer

import (
	"path"
	"path/filepath"
	"strings"
)

// ResolveDestinationPath maps a source entry's relative path to a destination path,
// §4.6's name-resolution rule, grounded on the teacher's
// cmd/zc_enumerator.go relative-path/delimiter handling:
//
//   - blob -> blob: identity, the relative path is reused unchanged.
//   - blob -> local: the remote "/" delimiter folds to the local path separator,
//     with runs of the configured delimiter collapsed to one separator.
//   - local -> blob: the local separator is normalized to "/".
func ResolveDestinationPath(relPath string, sourceIsLocal, destIsLocal bool, delimiter string) string {
	if sourceIsLocal == destIsLocal {
		return relPath
	}
	if delimiter == "" {
		delimiter = "/"
	}
	if sourceIsLocal {
		// local -> blob
		normalized := strings.ReplaceAll(relPath, "\\", "/")
		return path.Clean(normalized)
	}
	// blob -> local
	folded := relPath
	for strings.Contains(folded, delimiter+delimiter) {
		folded = strings.ReplaceAll(folded, delimiter+delimiter, delimiter)
	}
	return strings.ReplaceAll(folded, delimiter, string(filepath.Separator))
}
