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

// Package blobclient defines the BlobClient capability the engine consumes from its
// remote-store collaborator, §6. This package holds only the contract: the concrete
// wire protocol (authentication, chunk upload/download primitives, async
// server-side-copy polling) is out of scope for this engine, per spec.md §1.
package blobclient

import (
	"context"
	"time"
)

// Metadata is a case-preserved key/value bag attached to a blob or container. The
// well-known "hdi_isfolder" key (case-insensitive) marks a directory placeholder, §6.
type Metadata map[string]string

// IsFolderMarker reports whether m carries the zero-byte directory marker.
func (m Metadata) IsFolderMarker() bool {
	for k, v := range m {
		if eqFold(k, "hdi_isfolder") && eqFold(v, "true") {
			return true
		}
	}
	return false
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// BlobProperties is the result of fetchMetadata, §6.
type BlobProperties struct {
	Length      int64
	ContentMD5  []byte
	BlobType    string
	Metadata    Metadata
	Exists      bool
}

// CopyStatus is the result of getCopyStatus, §6.
type CopyStatus struct {
	Status            CopyStatusCode
	BytesCopied       int64
	TotalBytes        int64
	StatusDescription string
}

// CopyStatusCode enumerates the terminal/non-terminal states the Monitor state
// (§4.5) polls for.
type CopyStatusCode uint8

const (
	CopyStatusPending CopyStatusCode = iota
	CopyStatusSuccess
	CopyStatusAborted
	CopyStatusFailed
)

// ListEntry is one row of a listBlobsSegmented page, §6.
type ListEntry struct {
	Name       string
	IsPrefix   bool // true when this entry represents a virtual "directory" prefix
	Size       int64
	Metadata   Metadata
	BlobType   string
}

// BlobClient is the capability the engine requires of its remote-store collaborator.
// Every operation is cancellable via ctx; operations documented as idempotent may be
// retried by the caller without additional coordination.
type BlobClient interface {
	// FetchMetadata treats 403/404 from container-level probes as soft failures:
	// implementations should return (BlobProperties{Exists:false}, nil) rather than
	// an error for those two cases specifically.
	FetchMetadata(ctx context.Context, blobOrContainerURI string) (BlobProperties, error)

	// PutBlock is idempotent per blockID.
	PutBlock(ctx context.Context, blobURI, blockID string, offset int64, data []byte, md5 []byte) error

	CommitBlockList(ctx context.Context, blobURI string, blockIDs []string, overwrite bool) error

	// PutPageOrAppend writes data at offset for page or append blobs, which have no
	// block-list commit step.
	PutPageOrAppend(ctx context.Context, blobURI string, offset int64, data []byte) error

	GetRange(ctx context.Context, blobURI string, offset, length int64) ([]byte, error)

	// StartServerCopy is idempotent only in the sense that a repeated call with an
	// unrelated destination state starts a new copy; callers must not call it twice
	// for the same transfer attempt without first checking copyId.
	StartServerCopy(ctx context.Context, sourceURI, destURI string) (copyID string, err error)

	GetCopyStatus(ctx context.Context, destURI string) (CopyStatus, error)

	GenerateReadSAS(ctx context.Context, blobURI string, lifetime time.Duration) (string, error)

	// ListBlobsSegmented pages through prefix; an empty nextToken on return means the
	// listing is exhausted.
	ListBlobsSegmented(ctx context.Context, containerURI, prefix, delimiter, continuationToken string) (entries []ListEntry, nextToken string, err error)
}
