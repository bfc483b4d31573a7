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

package checkpoint

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/progress"
)

// FileBacking is what a Journal needs from its backing store. *os.File satisfies it;
// tests use an in-memory fake instead of touching a real filesystem, the same
// substitution the teacher gets for free from an mmap'd *os.File but this engine
// gets by depending on interfaces instead of unsafe pointer casts (§4.9).
type FileBacking interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}

// Head is the eleven-field journal head, §4.7, stored at byte offset
// common.JournalBaseAreaStart-common.JournalHeadAreaSize .. common.JournalBaseAreaStart,
// i.e. [256, 512). A zero value denotes every list being empty.
type Head struct {
	SingleTransferChunkHead        uint64
	SingleTransferChunkTail        uint64
	OngoingSubDirChunkHead         uint64
	OngoingSubDirChunkTail         uint64
	SubDirRelpathChunkHead         uint64
	SubDirRelpathChunkTail         uint64
	FreeChunkHead                  uint64
	FreeChunkTail                  uint64
	SubDirRelpathNextWriteOffset   uint64
	SubDirRelpathCurrentReadOffset uint64
	PreservedChunkCount            uint64
}

const headFieldCount = 11

func (h Head) encode() []byte {
	buf := make([]byte, headFieldCount*8)
	fields := h.fields()
	for i, f := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:], *f)
	}
	return buf
}

func (h *Head) decode(buf []byte) {
	fields := h.fields()
	for i, f := range fields {
		*f = binary.LittleEndian.Uint64(buf[i*8:])
	}
}

// fields lists the eleven u64s in their on-disk order, so encode/decode and the
// "all zero" probe share one definition of the head layout.
func (h *Head) fields() [headFieldCount]*uint64 {
	return [headFieldCount]*uint64{
		&h.SingleTransferChunkHead, &h.SingleTransferChunkTail,
		&h.OngoingSubDirChunkHead, &h.OngoingSubDirChunkTail,
		&h.SubDirRelpathChunkHead, &h.SubDirRelpathChunkTail,
		&h.FreeChunkHead, &h.FreeChunkTail,
		&h.SubDirRelpathNextWriteOffset, &h.SubDirRelpathCurrentReadOffset,
		&h.PreservedChunkCount,
	}
}

// EmptyProbe decides whether the version area denotes a never-initialized journal.
// The Design Notes record this as an open question: the source treats any
// all-zero read of the version area as "empty", which would misclassify a
// legitimately zero-prefixed version string. DefaultEmptyProbe preserves that
// behavior; callers needing stronger disambiguation may supply their own.
type EmptyProbe func(versionArea []byte) bool

// DefaultEmptyProbe reports true when every byte of the version area is zero.
func DefaultEmptyProbe(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Journal is C11: a fixed-layout binary checkpoint file. One journalLock (mu)
// serializes all mutations, per §4.7's concurrency rule; readers iterating a list
// take the lock per item rather than holding it for a whole traversal.
type Journal struct {
	mu    sync.Mutex
	file  FileBacking
	probe EmptyProbe
	head  Head
	size  uint64 // high-water mark of allocated file length, for chunk extension
}

// Option configures Open.
type Option func(*Journal)

// WithEmptyProbe overrides the empty-journal probe hook.
func WithEmptyProbe(p EmptyProbe) Option {
	return func(j *Journal) { j.probe = p }
}

// Open opens or initializes a journal backed by file. disableValidation skips the
// format-version compatibility check, mirroring common.Config.DisableJournalValidation.
// On a fresh journal, isNew is true and record is the zero TransferRecord; on a
// resumed journal, isNew is false and record is the decoded root transfer.
func Open(file FileBacking, disableValidation bool, opts ...Option) (j *Journal, record TransferRecord, isNew bool, err error) {
	j = &Journal{file: file, probe: DefaultEmptyProbe}
	for _, opt := range opts {
		opt(j)
	}

	versionArea := make([]byte, common.JournalVersionAreaSize)
	if _, err := file.ReadAt(versionArea, 0); err != nil && err != io.EOF {
		return nil, TransferRecord{}, false, errors.Wrap(err, "checkpoint: read version area")
	}

	if j.probe(versionArea) {
		if err := j.initializeNew(); err != nil {
			return nil, TransferRecord{}, false, err
		}
		return j, TransferRecord{}, true, nil
	}

	version := decodeVersionString(versionArea)
	if !disableValidation && version != common.FormatVersion {
		return nil, TransferRecord{}, false, errors.Errorf(
			"checkpoint: journal format version %q does not match %q", version, common.FormatVersion)
	}

	headBuf := make([]byte, common.JournalHeadAreaSize)
	if _, err := file.ReadAt(headBuf, common.JournalVersionAreaSize); err != nil {
		return nil, TransferRecord{}, false, errors.Wrap(err, "checkpoint: read journal head")
	}
	j.head.decode(headBuf[:headFieldCount*8])
	j.size = maxU64(uint64(common.JournalExtentStart), j.head.PreservedChunkCount*common.JournalChunkSize+uint64(common.JournalExtentStart))

	record, err = j.readBaseTransferLocked()
	if err != nil {
		return nil, TransferRecord{}, false, err
	}
	return j, record, false, nil
}

func (j *Journal) initializeNew() error {
	v := encodeVersionString(common.FormatVersion, common.JournalVersionAreaSize)
	if _, err := j.file.WriteAt(v, 0); err != nil {
		return errors.Wrap(err, "checkpoint: write version area")
	}
	j.head = Head{}
	if _, err := j.file.WriteAt(j.head.encode(), common.JournalVersionAreaSize); err != nil {
		return errors.Wrap(err, "checkpoint: write journal head")
	}
	j.size = uint64(common.JournalExtentStart)
	return j.file.Sync()
}

// WriteBaseTransfer persists the root transfer into the fixed base area [512, 40960),
// splitting its trailing common.JournalBaseProgressSize bytes off for the progress
// snapshot exactly as §4.7 describes.
func (j *Journal) WriteBaseTransfer(rec TransferRecord, snap progress.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	payload, err := rec.Encode(common.JournalBaseTransferSize)
	if err != nil {
		return err
	}
	padded := make([]byte, common.JournalBaseTransferSize)
	copy(padded, payload)
	if _, err := j.file.WriteAt(padded, int64(common.JournalBaseAreaStart)); err != nil {
		return errors.Wrap(err, "checkpoint: write base transfer")
	}

	progBuf := encodeSnapshot(snap)
	progOffset := int64(common.JournalBaseAreaStart) + int64(common.JournalBaseTransferSize)
	if _, err := j.file.WriteAt(progBuf, progOffset); err != nil {
		return errors.Wrap(err, "checkpoint: write base transfer progress")
	}
	return j.file.Sync()
}

// ReadBaseTransfer returns the current root transfer record and its progress
// snapshot.
func (j *Journal) ReadBaseTransfer() (TransferRecord, progress.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, err := j.readBaseTransferLocked()
	if err != nil {
		return TransferRecord{}, progress.Snapshot{}, err
	}
	snap, err := j.readBaseProgressLocked()
	return rec, snap, err
}

func (j *Journal) readBaseTransferLocked() (TransferRecord, error) {
	buf := make([]byte, common.JournalBaseTransferSize)
	if _, err := j.file.ReadAt(buf, int64(common.JournalBaseAreaStart)); err != nil && err != io.EOF {
		return TransferRecord{}, errors.Wrap(err, "checkpoint: read base transfer")
	}
	return DecodeTransferRecord(trimTrailingZero(buf))
}

func (j *Journal) readBaseProgressLocked() (progress.Snapshot, error) {
	buf := make([]byte, common.JournalBaseProgressSize)
	offset := int64(common.JournalBaseAreaStart) + int64(common.JournalBaseTransferSize)
	if _, err := j.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		return progress.Snapshot{}, errors.Wrap(err, "checkpoint: read base transfer progress")
	}
	return decodeSnapshot(buf), nil
}

// Close flushes outstanding state. The journal's correctness does not depend on
// Close being called (every mutation already flushes per §4.7's "after a torn
// write the head is authoritative" rule); Close exists so callers holding an
// *os.File can release the descriptor deterministically.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Sync()
}

func encodeVersionString(s string, areaSize int) []byte {
	buf := make([]byte, areaSize)
	binary.LittleEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	return buf
}

func decodeVersionString(buf []byte) string {
	n := binary.LittleEndian.Uint16(buf)
	if int(n) > len(buf)-2 {
		n = uint16(len(buf) - 2)
	}
	return string(buf[2 : 2+n])
}

func encodeSnapshot(s progress.Snapshot) []byte {
	buf := make([]byte, common.JournalBaseProgressSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(s.BytesTransferred))
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.FilesTransferred))
	binary.LittleEndian.PutUint64(buf[16:], uint64(s.FilesSkipped))
	binary.LittleEndian.PutUint64(buf[24:], uint64(s.FilesFailed))
	return buf
}

func decodeSnapshot(buf []byte) progress.Snapshot {
	return progress.Snapshot{
		BytesTransferred: int64(binary.LittleEndian.Uint64(buf[0:])),
		FilesTransferred: int64(binary.LittleEndian.Uint64(buf[8:])),
		FilesSkipped:     int64(binary.LittleEndian.Uint64(buf[16:])),
		FilesFailed:      int64(binary.LittleEndian.Uint64(buf[24:])),
	}
}

func trimTrailingZero(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
