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

// Package checkpoint implements C10 (in-memory TransferCollection) and C11 (the
// binary StreamJournal), §3/§4.7.
package checkpoint

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
)

// ChunkRange is one entry of a SingleObjectCheckpoint's sliding window, §4.5 —
// at most common.MaxCountInTransferWindow of these are live for a single transfer.
type ChunkRange struct {
	Offset int64
	Length int64
}

// LocationRecord is the serializable projection of a location.Location: only the
// fields that identify and reconstruct the location, never credentials or streams.
// Encoding a stream location is refused outright (location.Location.IsStream), per
// §3's "stream locations are never serialized" invariant.
type LocationRecord struct {
	Kind         common.Location
	Path         string
	RelPath      string
	URI          string
	ContainerURI string
	Prefix       string
	Snapshot     string
	BlobType     common.BlobType
}

// EncodeLocation projects l into its serializable record.
func EncodeLocation(l location.Location) (LocationRecord, error) {
	if l.IsStream() {
		return LocationRecord{}, errors.New("checkpoint: in-memory stream locations cannot be journaled")
	}
	return LocationRecord{
		Kind:         l.Kind,
		Path:         l.Path,
		RelPath:      l.RelPath,
		URI:          l.URI,
		ContainerURI: l.ContainerURI,
		Prefix:       l.Prefix,
		Snapshot:     l.Snapshot,
		BlobType:     l.BlobType,
	}, nil
}

// Decode reconstructs a location.Location from the record. Credentials are not part
// of the record; callers reattach them via location.Location.RefreshCredentials
// after decode, per the resume-without-relocation invariant of §3.
func (r LocationRecord) Decode() location.Location {
	switch r.Kind {
	case common.ELocation.LocalFile():
		return location.LocalFile(r.Path, r.RelPath)
	case common.ELocation.LocalDirectory():
		return location.LocalDirectory(r.Path)
	case common.ELocation.RemoteBlob():
		return location.RemoteBlob(r.URI, r.BlobType, nil, location.RequestOptions{})
	case common.ELocation.RemoteBlobDirectory():
		return location.RemoteBlobDirectory(r.ContainerURI, r.Prefix, nil, location.RequestOptions{})
	case common.ELocation.SourceURI():
		return location.SourceURI(r.URI)
	default:
		return location.Location{Kind: r.Kind}
	}
}

// TransferRecord is what actually gets written into the journal's base-transfer
// area or a 9 200-byte sub-transfer chunk payload (§4.7). It covers both
// SingleObjectTransfer and SubDirectoryTransfer; RelativePath and
// ContinuationToken are meaningful only for the latter.
type TransferRecord struct {
	Source      LocationRecord
	Destination LocationRecord
	Method      common.TransferMethod
	Status      common.TransferStatus
	Overwrite   bool
	CopyID      string
	Window      []ChunkRange

	// RelativePath and ContinuationToken are populated for an ongoingSubDir record;
	// zero for the base (root) transfer.
	RelativePath      string
	ContinuationToken []byte
}

// Encode gob-encodes r. The journal's fixed-layout offsets (version area, head,
// chunk links) are written with encoding/binary against exact byte ranges per
// §4.7; the payload inside those ranges has no wire format mandated by the spec
// beyond "fits in the budget", so it is gob-encoded here exactly as
// continuation.Token is — consistent encoding across every journal payload.
func (r TransferRecord) Encode(budget int) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, errors.Wrap(err, "checkpoint: encode transfer record")
	}
	if buf.Len() > budget {
		return nil, errors.Errorf("checkpoint: encoded record is %d bytes, exceeds budget %d", buf.Len(), budget)
	}
	return buf.Bytes(), nil
}

// DecodeTransferRecord reverses Encode. An empty slice decodes to the zero record.
func DecodeTransferRecord(b []byte) (TransferRecord, error) {
	var r TransferRecord
	if len(b) == 0 {
		return r, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return TransferRecord{}, errors.Wrap(err, "checkpoint: decode transfer record")
	}
	return r, nil
}

// TrimWindow enforces the MaxCountInTransferWindow invariant, keeping the most
// recent entries — the sliding-window eviction policy implied by §4.5.
func TrimWindow(w []ChunkRange) []ChunkRange {
	if len(w) <= common.MaxCountInTransferWindow {
		return w
	}
	return w[len(w)-common.MaxCountInTransferWindow:]
}
