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

// Package location implements C3: TransferLocation as a tagged union keyed by
// common.Location, per the Design Notes' "polymorphic hierarchy becomes a tagged
// sum" guidance — a discriminator field plus one populated variant, not an
// interface hierarchy, so the binary journal can store a stable discriminator.
package location

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
)

// RequestOptions carries per-location overrides (access conditions, blob tier, etc.)
// that the engine threads through to blobclient.BlobClient calls without
// interpreting itself.
type RequestOptions struct {
	AccessCondition string
	BlobTier        string
}

// Location is the TransferLocation variant of §3. Exactly one of the Local*/Remote*/
// Stream/URI fields is meaningful, selected by Kind.
type Location struct {
	Kind common.Location

	// LocalFilePath / LocalDirectoryPath
	Path    string
	RelPath string // only meaningful on LocalFilePath, optional

	// RemoteBlob / RemoteBlobDirectory
	URI             string
	ContainerURI    string
	Prefix          string
	Snapshot        string
	BlobType        common.BlobType
	Credentials     azcore.TokenCredential
	RequestOptions  RequestOptions

	// InMemoryStream
	Stream io.ReadWriteSeeker

	// SourceURI
	SourceURI string
}

func LocalFile(path string, relPath string) Location {
	return Location{Kind: common.ELocation.LocalFile(), Path: path, RelPath: relPath}
}

func LocalDirectory(dir string) Location {
	return Location{Kind: common.ELocation.LocalDirectory(), Path: dir}
}

func RemoteBlob(uri string, blobType common.BlobType, creds azcore.TokenCredential, opts RequestOptions) Location {
	return Location{Kind: common.ELocation.RemoteBlob(), URI: uri, BlobType: blobType, Credentials: creds, RequestOptions: opts}
}

func RemoteBlobDirectory(containerURI, prefix string, creds azcore.TokenCredential, opts RequestOptions) Location {
	return Location{Kind: common.ELocation.RemoteBlobDirectory(), ContainerURI: containerURI, Prefix: prefix, Credentials: creds, RequestOptions: opts}
}

func InMemoryStream(stream io.ReadWriteSeeker) Location {
	return Location{Kind: common.ELocation.InMemoryStream(), Stream: stream}
}

func SourceURI(uri string) Location {
	return Location{Kind: common.ELocation.SourceURI(), SourceURI: uri}
}

// Identity returns the string this location contributes to a Transfer's
// common.TransferKey — its path or URI, independent of credentials or stream state.
func (l Location) Identity() string {
	switch l.Kind {
	case common.ELocation.LocalFile(), common.ELocation.LocalDirectory():
		return l.Path
	case common.ELocation.RemoteBlob():
		return l.URI
	case common.ELocation.RemoteBlobDirectory():
		return l.ContainerURI + "/" + l.Prefix
	case common.ELocation.SourceURI():
		return l.SourceURI
	case common.ELocation.InMemoryStream():
		return "<stream>"
	default:
		return ""
	}
}

// Validate checks the invariants every location must hold before a transfer using it
// can be constructed: l has a known Kind and the field its Kind selects is set.
// Keeping stream locations out of the journal is done by checkpoint.EncodeLocation
// (see IsStream), not here.
func (l Location) Validate() error {
	switch l.Kind {
	case common.ELocation.LocalFile(), common.ELocation.LocalDirectory():
		if l.Path == "" {
			return errors.New("location: local path is empty")
		}
	case common.ELocation.RemoteBlob():
		if l.URI == "" {
			return errors.New("location: remote blob URI is empty")
		}
	case common.ELocation.RemoteBlobDirectory():
		if l.ContainerURI == "" {
			return errors.New("location: remote blob directory container URI is empty")
		}
	case common.ELocation.InMemoryStream():
		if l.Stream == nil {
			return errors.New("location: in-memory stream is nil")
		}
	case common.ELocation.SourceURI():
		if l.SourceURI == "" {
			return errors.New("location: source URI is empty")
		}
	default:
		return errors.Errorf("location: unknown kind %v", l.Kind)
	}
	return nil
}

// RefreshCredentials replaces the location's credential without relocating it — the
// invariant that lets a resumed transfer pick up a fresh token at reopen rather than
// re-resolving source/destination from scratch.
func (l *Location) RefreshCredentials(_ context.Context, creds azcore.TokenCredential) error {
	if l.Kind != common.ELocation.RemoteBlob() && l.Kind != common.ELocation.RemoteBlobDirectory() {
		return nil
	}
	if creds == nil {
		return errors.New("location: refresh called with nil credentials")
	}
	l.Credentials = creds
	return nil
}

// IsStream reports whether l is an InMemoryStream location, used at every
// serialization boundary to refuse to write a stream into the journal.
func (l Location) IsStream() bool {
	return l.Kind == common.ELocation.InMemoryStream()
}
