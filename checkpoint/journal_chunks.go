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

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/progress"
)

// ListKind selects which of the journal's three payload-bearing chunk lists
// (singleTransfer, ongoingSubDir) a chunk belongs to; subDirRelpath is append-only
// and handled separately in journal_subdir.go.
type ListKind uint8

const (
	ListSingleTransfer ListKind = iota
	ListOngoingSubDir
)

func (j *Journal) listPointers(kind ListKind) (head, tail *uint64) {
	switch kind {
	case ListSingleTransfer:
		return &j.head.SingleTransferChunkHead, &j.head.SingleTransferChunkTail
	default:
		return &j.head.OngoingSubDirChunkHead, &j.head.OngoingSubDirChunkTail
	}
}

// writeHeadLocked rewrites the 11-field head. Caller holds j.mu. Every mutating
// operation follows §4.7's "write payload -> splice list pointers -> rewrite head
// -> flush" order, so the head is always the authoritative recovery point even
// after a torn write.
func (j *Journal) writeHeadLocked() error {
	if _, err := j.file.WriteAt(j.head.encode(), int64(common.JournalVersionAreaSize)); err != nil {
		return errors.Wrap(err, "checkpoint: write journal head")
	}
	return j.file.Sync()
}

func (j *Journal) readLink(offset uint64) (prev, next uint64, err error) {
	buf := make([]byte, common.JournalSubChunkLinkSize)
	if _, err := j.file.ReadAt(buf, int64(offset)); err != nil {
		return 0, 0, errors.Wrap(err, "checkpoint: read chunk link")
	}
	return binary.LittleEndian.Uint64(buf[0:]), binary.LittleEndian.Uint64(buf[8:]), nil
}

func (j *Journal) writeLink(offset uint64, prev, next uint64) error {
	buf := make([]byte, common.JournalSubChunkLinkSize)
	binary.LittleEndian.PutUint64(buf[0:], prev)
	binary.LittleEndian.PutUint64(buf[8:], next)
	if _, err := j.file.WriteAt(buf, int64(offset)); err != nil {
		return errors.Wrap(err, "checkpoint: write chunk link")
	}
	return nil
}

func (j *Journal) setPrev(offset, prev uint64) error {
	_, next, err := j.readLink(offset)
	if err != nil {
		return err
	}
	return j.writeLink(offset, prev, next)
}

func (j *Journal) setNext(offset, next uint64) error {
	prev, _, err := j.readLink(offset)
	if err != nil {
		return err
	}
	return j.writeLink(offset, prev, next)
}

// allocateChunkLocked draws from the free list first, else extends the file by one
// chunk and bumps PreservedChunkCount, per §4.7.
func (j *Journal) allocateChunkLocked() (uint64, error) {
	if j.head.FreeChunkHead != 0 {
		offset := j.head.FreeChunkHead
		if err := j.listRemoveLocked(&j.head.FreeChunkHead, &j.head.FreeChunkTail, offset); err != nil {
			return 0, err
		}
		if err := j.writeLink(offset, 0, 0); err != nil {
			return 0, err
		}
		return offset, nil
	}
	offset := j.size
	j.size += common.JournalChunkSize
	j.head.PreservedChunkCount++
	if err := j.writeLink(offset, 0, 0); err != nil {
		return 0, err
	}
	return offset, nil
}

func (j *Journal) freeChunkLocked(offset uint64) error {
	return j.listPushTailLocked(&j.head.FreeChunkHead, &j.head.FreeChunkTail, offset)
}

func (j *Journal) listPushTailLocked(head, tail *uint64, offset uint64) error {
	oldTail := *tail
	if err := j.writeLink(offset, oldTail, 0); err != nil {
		return err
	}
	if oldTail != 0 {
		if err := j.setNext(oldTail, offset); err != nil {
			return err
		}
	} else {
		*head = offset
	}
	*tail = offset
	return nil
}

func (j *Journal) listRemoveLocked(head, tail *uint64, offset uint64) error {
	prev, next, err := j.readLink(offset)
	if err != nil {
		return err
	}
	if prev != 0 {
		if err := j.setNext(prev, next); err != nil {
			return err
		}
	} else {
		*head = next
	}
	if next != 0 {
		if err := j.setPrev(next, prev); err != nil {
			return err
		}
	} else {
		*tail = prev
	}
	return nil
}

// WriteListRecord persists rec (and its progress snapshot) into the chunk at
// offset, allocating and appending a fresh chunk to kind's list when offset is 0.
// It returns the chunk's offset, to be remembered by the caller (e.g. as a
// SubDirectoryTransfer's journalOffset) for future in-place rewrites.
func (j *Journal) WriteListRecord(kind ListKind, offset uint64, rec TransferRecord, snap progress.Snapshot) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if offset == 0 {
		var err error
		offset, err = j.allocateChunkLocked()
		if err != nil {
			return 0, err
		}
		head, tail := j.listPointers(kind)
		if err := j.listPushTailLocked(head, tail, offset); err != nil {
			return 0, err
		}
	}

	payload, err := rec.Encode(common.JournalSubChunkPayload)
	if err != nil {
		return 0, err
	}
	padded := make([]byte, common.JournalSubChunkPayload)
	copy(padded, payload)
	payloadOffset := int64(offset) + common.JournalSubChunkLinkSize
	if _, err := j.file.WriteAt(padded, payloadOffset); err != nil {
		return 0, errors.Wrap(err, "checkpoint: write chunk payload")
	}

	progBuf := encodeSnapshot(snap)
	progOffset := payloadOffset + int64(common.JournalSubChunkPayload)
	if _, err := j.file.WriteAt(progBuf, progOffset); err != nil {
		return 0, errors.Wrap(err, "checkpoint: write chunk progress")
	}

	if err := j.writeHeadLocked(); err != nil {
		return 0, err
	}
	return offset, j.file.Sync()
}

// ReadListRecord decodes the record and progress snapshot stored at offset.
func (j *Journal) ReadListRecord(offset uint64) (TransferRecord, progress.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	payload := make([]byte, common.JournalSubChunkPayload)
	payloadOffset := int64(offset) + common.JournalSubChunkLinkSize
	if _, err := j.file.ReadAt(payload, payloadOffset); err != nil {
		return TransferRecord{}, progress.Snapshot{}, errors.Wrap(err, "checkpoint: read chunk payload")
	}
	rec, err := DecodeTransferRecord(trimTrailingZero(payload))
	if err != nil {
		return TransferRecord{}, progress.Snapshot{}, err
	}

	progBuf := make([]byte, common.JournalSubChunkProgress)
	progOffset := payloadOffset + int64(common.JournalSubChunkPayload)
	if _, err := j.file.ReadAt(progBuf, progOffset); err != nil {
		return TransferRecord{}, progress.Snapshot{}, errors.Wrap(err, "checkpoint: read chunk progress")
	}
	return rec, decodeSnapshot(progBuf), nil
}

// RemoveListRecord splices offset out of kind's list and returns its chunk to the
// free list, for a SingleObjectTransfer/SubDirectoryTransfer that has finished.
func (j *Journal) RemoveListRecord(kind ListKind, offset uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	head, tail := j.listPointers(kind)
	if err := j.listRemoveLocked(head, tail, offset); err != nil {
		return err
	}
	if err := j.freeChunkLocked(offset); err != nil {
		return err
	}
	return j.writeHeadLocked()
}

// RangeList walks kind's list from head to tail, calling fn for each record. Per
// §4.7's concurrency rule, the journal lock is acquired and released once per item
// rather than held across the whole traversal, so a concurrent mutation can
// interleave between items — iteration is a sequence of consistent single-item
// snapshots, not one consistent whole-list view.
func (j *Journal) RangeList(kind ListKind, fn func(offset uint64, rec TransferRecord, snap progress.Snapshot) bool) error {
	j.mu.Lock()
	head, _ := j.listPointers(kind)
	cur := *head
	j.mu.Unlock()

	for cur != 0 {
		rec, snap, err := j.ReadListRecord(cur)
		if err != nil {
			return err
		}
		if !fn(cur, rec, snap) {
			return nil
		}
		j.mu.Lock()
		_, next, err := j.readLink(cur)
		j.mu.Unlock()
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}
