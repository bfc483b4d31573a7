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
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/blobclient"
	"github.com/datamovement/dmcore/continuation"
)

// BlobEnumerator pages through a remote container/prefix via
// blobclient.BlobClient.ListBlobsSegmented, grounded on the teacher's
// cmd/zc_traverser_blob.go. hdi_isfolder markers (§6) are surfaced as
// DirectoryEntry carrying the marker's metadata, and no payload is read for them.
// HierarchicalDirectoryTransfer queues such an entry as a sub-directory level and
// FlatDirectoryTransfer skips it; neither creates a DummyCopy transfer for it.
type BlobEnumerator struct {
	client        blobclient.BlobClient
	containerURI  string
	prefix        string
	delimiter     string
	searchPattern string
	recursive     bool

	page    []blobclient.ListEntry
	idx     int
	marker  string
	done    bool
}

func NewBlobEnumerator(client blobclient.BlobClient, containerURI, prefix, delimiter, searchPattern string, recursive bool, token continuation.Token) *BlobEnumerator {
	be := &BlobEnumerator{
		client:        client,
		containerURI:  containerURI,
		prefix:        prefix,
		delimiter:     delimiter,
		searchPattern: searchPattern,
		recursive:     recursive,
		marker:        token.BlobMarker,
		done:          token.Done,
	}
	return be
}

func (be *BlobEnumerator) SearchPattern() string { return be.searchPattern }
func (be *BlobEnumerator) Recursive() bool       { return be.recursive }
func (be *BlobEnumerator) FollowSymlink() bool   { return false }

func (be *BlobEnumerator) ContinuationToken() continuation.Token {
	return continuation.Token{Kind: continuation.KindBlobDirectory, BlobMarker: be.marker, Done: be.done}
}

func (be *BlobEnumerator) Next(ctx context.Context) (Entry, bool, error) {
	for {
		if ctx.Err() != nil {
			return Entry{}, false, ctx.Err()
		}
		if be.idx < len(be.page) {
			raw := be.page[be.idx]
			be.idx++
			entry, matched := be.toEntry(raw)
			if !matched {
				continue
			}
			return entry, true, nil
		}
		if be.done {
			return Entry{}, false, nil
		}

		delim := be.delimiter
		if be.recursive {
			delim = ""
		}
		entries, next, err := be.client.ListBlobsSegmented(ctx, be.containerURI, be.prefix, delim, be.marker)
		if err != nil {
			return Entry{}, false, errors.Wrap(err, "enumerate: list blobs")
		}
		be.page = entries
		be.idx = 0
		be.marker = next
		if next == "" {
			be.done = true
		}
		if len(entries) == 0 && be.done {
			return Entry{}, false, nil
		}
	}
}

// toEntry converts a raw listing row into an Entry, returning matched=false when a
// non-directory row fails the search pattern and should be silently skipped.
func (be *BlobEnumerator) toEntry(e blobclient.ListEntry) (Entry, bool) {
	rel := strings.TrimPrefix(e.Name, be.prefix)
	rel = strings.TrimPrefix(rel, "/")

	if e.IsPrefix {
		return Entry{Kind: EntryDirectory, RelPath: strings.TrimSuffix(rel, "/"), FullPath: e.Name}, true
	}
	if e.Metadata.IsFolderMarker() {
		return Entry{Kind: EntryDirectory, RelPath: rel, FullPath: e.Name, Metadata: e.Metadata}, true
	}
	if be.searchPattern != "" && !matchGlob(be.searchPattern, rel) {
		return Entry{}, false
	}
	return Entry{Kind: EntryFile, RelPath: rel, FullPath: e.Name, Size: e.Size, Metadata: e.Metadata}, true
}

// matchGlob matches pattern against the final path segment of name, mirroring the
// teacher's include-pattern semantics for blob names that contain "/".
func matchGlob(pattern, name string) bool {
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	ok, _ := filepath.Match(pattern, base)
	return ok
}
