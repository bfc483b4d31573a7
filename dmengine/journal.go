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

package dmengine

import (
	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/continuation"
	"github.com/datamovement/dmcore/transfer"
)

// seedFromJournal drains every sub-directory relative path remaining in j's relpath
// log into a Seed list for transfer.HierarchicalDirectoryTransfer.Run. The journal's
// relpath log is a plain FIFO (checkpoint.Journal.ReadNextSubDirRelpath), so each
// drained entry is appended back before returning; together with the appends made
// through journalSubDirCallbacks below, that keeps the log accurate across repeated
// crashes, at the cost of a directory
// that finished seconds before a crash sometimes being re-listed on the next Run —
// harmless, since re-enumerating an already-copied directory only re-checks files
// that ShouldOverwriteCallback / checkShouldTransfer already skip.
func seedFromJournal(j *checkpoint.Journal) ([]transfer.SubDirSeed, error) {
	var seed []transfer.SubDirSeed
	for {
		relPath, tokenBytes, ok, err := j.ReadNextSubDirRelpath()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		token, err := continuation.Decode(tokenBytes)
		if err != nil {
			return nil, err
		}
		seed = append(seed, transfer.SubDirSeed{RelPath: relPath, Token: token})
	}
	for _, s := range seed {
		encoded, err := s.Token.Encode()
		if err != nil {
			return nil, err
		}
		if err := j.AppendSubDirRelpath(s.RelPath, encoded); err != nil {
			return nil, err
		}
	}
	return seed, nil
}

// journalSubDirCallbacks builds the OnSubDirDiscovered/OnSubDirProgress pair that
// keeps j's relpath log current: every sub-directory is re-appended the moment it
// is queued (so it survives a crash before its own level is ever processed), and
// again appended with its terminal token once its level finishes (a resumed run
// seeded with that entry does not list the finished level again). The
// caller-supplied onProgress, if any, still runs so DirectoryOptions.OnSubDirProgress
// keeps working unchanged when a Journal is also wired in.
func journalSubDirCallbacks(j *checkpoint.Journal, onProgress func(relPath string, token continuation.Token)) (func(string), func(string, continuation.Token)) {
	discovered := func(relPath string) {
		_ = j.AppendSubDirRelpath(relPath, nil)
	}
	progress := func(relPath string, token continuation.Token) {
		encoded, err := token.Encode()
		if err == nil {
			_ = j.AppendSubDirRelpath(relPath, encoded)
		}
		if onProgress != nil {
			onProgress(relPath, token)
		}
	}
	return discovered, progress
}
