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

package testutil

import (
	"context"
	"crypto/md5"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datamovement/dmcore/blobclient"
)

// fakeBlob is one object held by FakeBlobClient, addressed by its full URI.
type fakeBlob struct {
	data      []byte
	blocks    map[string][]byte
	md5       []byte
	metadata  blobclient.Metadata
	blobType  string
	readCount int // bumped on every GetRange, so resume tests can assert no full re-read

	copySourceURI string
	copyBytes     int64
	copyTotal     int64
	copyStatus    blobclient.CopyStatusCode
}

// FakeBlobClient is a deterministic, in-memory blobclient.BlobClient, grounded on
// the teacher's httpmock-based ste/mockResponder_test.go responder but reduced to
// pure Go maps since this engine never opens a real socket.
type FakeBlobClient struct {
	mu    sync.Mutex
	blobs map[string]*fakeBlob

	// StallCopy, when set, freezes GetCopyStatus's BytesCopied at its current value
	// forever, letting tests exercise the TransferStuck stall watchdog (S6).
	StallCopy bool
}

func NewFakeBlobClient() *FakeBlobClient {
	return &FakeBlobClient{blobs: make(map[string]*fakeBlob)}
}

func (c *FakeBlobClient) blob(uri string, create bool) *fakeBlob {
	b, ok := c.blobs[uri]
	if !ok && create {
		b = &fakeBlob{blocks: make(map[string][]byte)}
		c.blobs[uri] = b
	}
	return b
}

// PutDirectoryMarker seeds a zero-byte hdi_isfolder=true blob, for exercising the
// DummyCopy / directory-marker path (S4) without going through PutBlock.
func (c *FakeBlobClient) PutDirectoryMarker(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(uri, true)
	b.data = nil
	b.metadata = blobclient.Metadata{"hdi_isfolder": "true"}
}

// Seed installs a blob with literal content, for overwrite / copy scenarios.
func (c *FakeBlobClient) Seed(uri string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(uri, true)
	b.data = append([]byte(nil), data...)
	sum := md5.Sum(data)
	b.md5 = sum[:]
}

func (c *FakeBlobClient) FetchMetadata(_ context.Context, uri string) (blobclient.BlobProperties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[uri]
	if !ok {
		return blobclient.BlobProperties{Exists: false}, nil
	}
	return blobclient.BlobProperties{
		Length:     int64(len(b.data)),
		ContentMD5: b.md5,
		BlobType:   b.blobType,
		Metadata:   b.metadata,
		Exists:     true,
	}, nil
}

func (c *FakeBlobClient) PutBlock(_ context.Context, blobURI, blockID string, _ int64, data []byte, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(blobURI, true)
	b.blocks[blockID] = append([]byte(nil), data...)
	return nil
}

func (c *FakeBlobClient) CommitBlockList(_ context.Context, blobURI string, blockIDs []string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(blobURI, true)
	var out []byte
	for _, id := range blockIDs {
		out = append(out, b.blocks[id]...)
	}
	b.data = out
	sum := md5.Sum(out)
	b.md5 = sum[:]
	b.blobType = "BlockBlob"
	return nil
}

func (c *FakeBlobClient) PutPageOrAppend(_ context.Context, blobURI string, offset int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(blobURI, true)
	end := int(offset) + len(data)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:end], data)
	sum := md5.Sum(b.data)
	b.md5 = sum[:]
	return nil
}

func (c *FakeBlobClient) GetRange(_ context.Context, blobURI string, offset, length int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(blobURI, false)
	if b == nil {
		return nil, nil
	}
	b.readCount++
	end := offset + length
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	if offset >= end {
		return nil, nil
	}
	return append([]byte(nil), b.data[offset:end]...), nil
}

// ReadCount reports how many GetRange calls a blob has served, for S3's "no file
// retransferred in its entirety" assertion.
func (c *FakeBlobClient) ReadCount(blobURI string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.blob(blobURI, false); b != nil {
		return b.readCount
	}
	return 0
}

func (c *FakeBlobClient) StartServerCopy(_ context.Context, sourceURI, destURI string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.blob(sourceURI, false)
	dst := c.blob(destURI, true)
	dst.copySourceURI = sourceURI
	dst.copyBytes = 0
	if src != nil {
		dst.copyTotal = int64(len(src.data))
	}
	dst.copyStatus = blobclient.CopyStatusPending
	return uuid.NewString(), nil
}

// AdvanceCopy simulates server-side copy progress for tests driving the Monitor
// state machine deterministically, rather than on a wall-clock timer.
func (c *FakeBlobClient) AdvanceCopy(destURI string, bytesCopied int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(destURI, true)
	if c.StallCopy {
		return
	}
	b.copyBytes = bytesCopied
	if b.copyBytes >= b.copyTotal {
		src := c.blob(b.copySourceURI, false)
		if src != nil {
			b.data = append([]byte(nil), src.data...)
			b.md5 = src.md5
		}
		b.copyStatus = blobclient.CopyStatusSuccess
	}
}

func (c *FakeBlobClient) GetCopyStatus(_ context.Context, destURI string) (blobclient.CopyStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.blob(destURI, true)
	return blobclient.CopyStatus{
		Status:      b.copyStatus,
		BytesCopied: b.copyBytes,
		TotalBytes:  b.copyTotal,
	}, nil
}

func (c *FakeBlobClient) GenerateReadSAS(_ context.Context, blobURI string, lifetime time.Duration) (string, error) {
	return blobURI + "?se=" + time.Now().Add(lifetime).Format(time.RFC3339), nil
}

func (c *FakeBlobClient) ListBlobsSegmented(_ context.Context, containerURI, prefix, delimiter, continuationToken string) ([]blobclient.ListEntry, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := strings.TrimSuffix(containerURI, "/") + "/"
	var names []string
	for uri := range c.blobs {
		if !strings.HasPrefix(uri, base+prefix) {
			continue
		}
		names = append(names, uri)
	}
	sort.Strings(names)

	seenPrefix := map[string]bool{}
	var entries []blobclient.ListEntry
	for _, uri := range names {
		rel := strings.TrimPrefix(uri, base)
		if delimiter != "" {
			if i := strings.Index(strings.TrimPrefix(rel, prefix), delimiter); i >= 0 {
				virtualDir := rel[:len(prefix)+i+len(delimiter)]
				if !seenPrefix[virtualDir] {
					seenPrefix[virtualDir] = true
					entries = append(entries, blobclient.ListEntry{Name: virtualDir, IsPrefix: true})
				}
				continue
			}
		}
		b := c.blobs[uri]
		entries = append(entries, blobclient.ListEntry{Name: rel, Size: int64(len(b.data)), Metadata: b.metadata, BlobType: b.blobType})
	}
	return entries, "", nil
}
