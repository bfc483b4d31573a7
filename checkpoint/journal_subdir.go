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
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
)

// subDirSlotsPerChunk is how many fixed relative-path slots fit after a chunk's
// 16-byte link header, per §4.7's "packed multiple per 10 KiB chunk".
const subDirSlotsPerChunk = (common.JournalChunkSize - common.JournalSubChunkLinkSize) / common.JournalSubDirSlotSize

type relpathSlot struct {
	RelPath string
	Token   []byte
}

// AppendSubDirRelpath appends a discovered sub-directory's relative path and its
// fresh enumeration token to the subDirRelpath log, extending the chunk chain when
// the current tail chunk is full. This is the pending-directory queue the
// hierarchical directory transfer persists across process restarts.
func (j *Journal) AppendSubDirRelpath(relPath string, token []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(relpathSlot{RelPath: relPath, Token: token}); err != nil {
		return errors.Wrap(err, "checkpoint: encode sub-directory relpath slot")
	}
	if buf.Len() > common.JournalSubDirSlotSize {
		return errors.Errorf("checkpoint: sub-directory relpath slot is %d bytes, exceeds %d", buf.Len(), common.JournalSubDirSlotSize)
	}

	if j.head.SubDirRelpathNextWriteOffset == 0 || !j.fitsInTailChunk(j.head.SubDirRelpathNextWriteOffset) {
		offset, err := j.allocateChunkLocked()
		if err != nil {
			return err
		}
		if err := j.listPushTailLocked(&j.head.SubDirRelpathChunkHead, &j.head.SubDirRelpathChunkTail, offset); err != nil {
			return err
		}
		j.head.SubDirRelpathNextWriteOffset = offset + common.JournalSubChunkLinkSize
		if j.head.SubDirRelpathCurrentReadOffset == 0 {
			j.head.SubDirRelpathCurrentReadOffset = j.head.SubDirRelpathNextWriteOffset
		}
	}

	padded := make([]byte, common.JournalSubDirSlotSize)
	copy(padded, buf.Bytes())
	if _, err := j.file.WriteAt(padded, int64(j.head.SubDirRelpathNextWriteOffset)); err != nil {
		return errors.Wrap(err, "checkpoint: write sub-directory relpath slot")
	}
	j.head.SubDirRelpathNextWriteOffset += common.JournalSubDirSlotSize

	return j.writeHeadLocked()
}

func (j *Journal) fitsInTailChunk(nextWrite uint64) bool {
	chunkStart := j.head.SubDirRelpathChunkTail
	capacityEnd := chunkStart + common.JournalSubChunkLinkSize + subDirSlotsPerChunk*common.JournalSubDirSlotSize
	return nextWrite+common.JournalSubDirSlotSize <= capacityEnd
}

// ReadNextSubDirRelpath consumes the next unread relpath slot, advancing the
// journal's read cursor. ok is false once the cursor has caught up with the write
// cursor.
func (j *Journal) ReadNextSubDirRelpath() (relPath string, token []byte, ok bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cur := j.head.SubDirRelpathCurrentReadOffset
	if cur == j.head.SubDirRelpathNextWriteOffset {
		return "", nil, false, nil
	}
	// Past the last slot of its chunk, the cursor continues in the next linked chunk.
	chunkStart := common.JournalExtentStart + (cur-common.JournalExtentStart)/common.JournalChunkSize*common.JournalChunkSize
	if cur+common.JournalSubDirSlotSize > chunkStart+common.JournalSubChunkLinkSize+subDirSlotsPerChunk*common.JournalSubDirSlotSize {
		_, next, err := j.readLink(chunkStart)
		if err != nil {
			return "", nil, false, err
		}
		cur = next + common.JournalSubChunkLinkSize
		if next == 0 || cur == j.head.SubDirRelpathNextWriteOffset {
			return "", nil, false, nil
		}
	}

	buf := make([]byte, common.JournalSubDirSlotSize)
	if _, err := j.file.ReadAt(buf, int64(cur)); err != nil {
		return "", nil, false, errors.Wrap(err, "checkpoint: read sub-directory relpath slot")
	}
	var slot relpathSlot
	if err := gob.NewDecoder(bytes.NewReader(trimTrailingZero(buf))).Decode(&slot); err != nil {
		return "", nil, false, errors.Wrap(err, "checkpoint: decode sub-directory relpath slot")
	}
	j.head.SubDirRelpathCurrentReadOffset = cur + common.JournalSubDirSlotSize
	if err := j.writeHeadLocked(); err != nil {
		return "", nil, false, err
	}
	return slot.RelPath, slot.Token, true, nil
}

// WriteOngoingSubDirToken rewrites the continuation token for the ongoing
// sub-directory transfer whose chunk starts at offset, at the fixed
// common.SubDirTokenChunkOffset within that chunk — separate from the chunk's main
// payload region so that refreshing the token on every enumeration step never
// moves (and never needs to rewrite) the transfer record itself, per §4.7.
func (j *Journal) WriteOngoingSubDirToken(offset uint64, token []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(token) > common.JournalChunkSize-common.SubDirTokenChunkOffset {
		return errors.Errorf("checkpoint: continuation token is %d bytes, exceeds token area", len(token))
	}
	padded := make([]byte, common.JournalChunkSize-common.SubDirTokenChunkOffset)
	copy(padded, token)
	if _, err := j.file.WriteAt(padded, int64(offset+common.SubDirTokenChunkOffset)); err != nil {
		return errors.Wrap(err, "checkpoint: write sub-directory token")
	}
	return j.file.Sync()
}

// ReadOngoingSubDirToken reads back the token written by WriteOngoingSubDirToken.
func (j *Journal) ReadOngoingSubDirToken(offset uint64) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	buf := make([]byte, common.JournalChunkSize-common.SubDirTokenChunkOffset)
	if _, err := j.file.ReadAt(buf, int64(offset+common.SubDirTokenChunkOffset)); err != nil {
		return nil, errors.Wrap(err, "checkpoint: read sub-directory token")
	}
	return trimTrailingZero(buf), nil
}
