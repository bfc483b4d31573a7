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

package enumerate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/continuation"
)

// LocalEnumerator walks a local directory tree depth-first (pre-order), grounded on the
// teacher's cmd/zc_traverser_local.go (lexicographic, recursive-or-not walk) and
// common/parallel/FileSystemCrawler.go. Unlike the
// teacher's channel-fed crawler, this one is pull-based (Next), which is what lets a
// HierarchicalDirectoryTransfer interleave calls to it with scheduler admission.
//
// The walk is pre-order depth-first, the same order filepath.WalkDir uses: a
// directory is descended into immediately upon being seen, before its remaining
// siblings are visited. That is what keeps relPath monotonically increasing across
// the whole walk when relPaths are compared with '/' ordered before every other byte
// (a directory's own relPath is always a strict prefix of, and so sorts before,
// anything under it, and everything under it sorts before its next sibling), which
// is how the resume skip-guard below compares them.
type LocalEnumerator struct {
	root          string
	searchPattern string
	recursive     bool
	followSymlink bool

	stack   []dirFrame // innermost directory currently being iterated is stack[len-1]
	lastRel string
	done    bool
}

// dirFrame is one directory's worth of iteration state. entries is populated lazily,
// on the first Next call that reaches this frame, so a directory discovered but never
// descended into (recursive=false) never pays for a ReadDir.
type dirFrame struct {
	fullPath string
	relPath  string
	entries  []os.DirEntry
	read     bool
	idx      int
}

// NewLocalEnumerator builds an enumerator rooted at root. token, when non-zero,
// resumes a prior walk by fast-forwarding past entries up to and including
// token.LocalLastRelPath — the resume contract of §4.3.
func NewLocalEnumerator(root, searchPattern string, recursive, followSymlink bool, token continuation.Token) (*LocalEnumerator, error) {
	le := &LocalEnumerator{
		root:          root,
		searchPattern: searchPattern,
		recursive:     recursive,
		followSymlink: followSymlink,
		stack:         []dirFrame{{fullPath: root, relPath: ""}},
	}
	if token.Done {
		le.done = true
		return le, nil
	}
	le.lastRel = token.LocalLastRelPath
	return le, nil
}

func (le *LocalEnumerator) SearchPattern() string { return le.searchPattern }
func (le *LocalEnumerator) Recursive() bool       { return le.recursive }
func (le *LocalEnumerator) FollowSymlink() bool   { return le.followSymlink }

func (le *LocalEnumerator) ContinuationToken() continuation.Token {
	if le.done {
		return continuation.Token{Kind: continuation.KindLocal, Done: true}
	}
	return continuation.Token{Kind: continuation.KindLocal, LocalLastRelPath: le.lastRel}
}

// Next returns the next lexicographically-ordered entry, descending into
// subdirectories immediately (pre-order) when Recursive is set. Entries already
// covered by the resume token (relPath <= lastRel, with '/' ordered before every
// other byte) are silently skipped.
func (le *LocalEnumerator) Next(ctx context.Context) (Entry, bool, error) {
	for {
		if ctx.Err() != nil {
			return Entry{}, false, ctx.Err()
		}
		if le.done {
			return Entry{}, false, nil
		}
		if len(le.stack) == 0 {
			le.done = true
			return Entry{}, false, nil
		}

		top := &le.stack[len(le.stack)-1]
		if !top.read {
			entries, err := os.ReadDir(top.fullPath)
			top.read = true
			if err != nil {
				relPath := top.relPath
				le.stack = le.stack[:len(le.stack)-1]
				return Entry{Kind: EntryError, RelPath: relPath, Err: errors.Wrapf(err, "enumerate: read dir %s", top.fullPath)}, true, nil
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
			top.entries = entries
		}

		if top.idx >= len(top.entries) {
			le.stack = le.stack[:len(le.stack)-1]
			continue
		}

		de := top.entries[top.idx]
		top.idx++
		fullPath := filepath.Join(top.fullPath, de.Name())
		relPath := joinRel(top.relPath, de.Name())

		if le.lastRel != "" && strings.ReplaceAll(relPath, "/", "\x00") <= strings.ReplaceAll(le.lastRel, "/", "\x00") {
			continue
		}
		le.lastRel = relPath

		info, err := le.statEntry(fullPath, de)
		if err != nil {
			return Entry{Kind: EntryError, RelPath: relPath, Err: errors.Wrap(err, "enumerate: stat")}, true, nil
		}

		if info.IsDir() {
			if le.recursive {
				le.stack = append(le.stack, dirFrame{fullPath: fullPath, relPath: relPath})
			}
			return Entry{Kind: EntryDirectory, RelPath: relPath, FullPath: fullPath}, true, nil
		}

		if le.searchPattern != "" {
			if ok, _ := filepath.Match(le.searchPattern, de.Name()); !ok {
				continue
			}
		}
		return Entry{Kind: EntryFile, RelPath: relPath, FullPath: fullPath, Size: info.Size()}, true, nil
	}
}

func (le *LocalEnumerator) statEntry(fullPath string, de os.DirEntry) (os.FileInfo, error) {
	if le.followSymlink {
		return os.Stat(fullPath)
	}
	return de.Info()
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
