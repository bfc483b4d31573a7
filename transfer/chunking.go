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

package transfer

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/datamovement/dmcore/common"
)

// ComputeBlockSize picks the smallest multiple of common.MinBlockSize that is both
// >= ceil(size/common.MaxBlockBlobBlocks) and <= common.MaxBlockSize, §4.5's
// block-size auto-tuning rule. Callers only need this for block blobs; page and
// append blobs always chunk at common.MinBlockSize (append's 4 MiB block cap) or
// common.CellSize (page blobs have no block concept at all).
func ComputeBlockSize(size int64) int64 {
	if size <= common.MinBlockSize {
		return common.MinBlockSize
	}
	minimumForBlockCount := (size + common.MaxBlockBlobBlocks - 1) / common.MaxBlockBlobBlocks
	rounded := ((minimumForBlockCount + common.MinBlockSize - 1) / common.MinBlockSize) * common.MinBlockSize
	if rounded < common.MinBlockSize {
		rounded = common.MinBlockSize
	}
	if rounded > common.MaxBlockSize {
		rounded = common.MaxBlockSize
	}
	return rounded
}

// ValidateObjectSize enforces the numeric limits of §4.5. It is checked when a
// transfer enters its Transfer state, before any chunk is read; New and Resume do
// not check it.
func ValidateObjectSize(size int64, blobType common.BlobType) error {
	switch blobType {
	case common.EBlobType.AppendBlob():
		if size > common.MaxAppendBlobBlocks*4*1024*1024 {
			return common.NewTransferError(common.EErrorCode.PathCustomValidationFailed(),
				fmt.Errorf("append blob size %d exceeds %d x 4 MiB limit", size, common.MaxAppendBlobBlocks))
		}
	case common.EBlobType.BlockBlob():
		if size > common.MaxBlockBlobBlocks*common.MaxBlockSize {
			return common.NewTransferError(common.EErrorCode.PathCustomValidationFailed(),
				fmt.Errorf("block blob size %d exceeds %d x 100 MiB limit", size, common.MaxBlockBlobBlocks))
		}
	}
	return nil
}

// newBlockID generates a fresh base64-encoded block identifier, grounded on the
// teacher's generateUploadFunc (ste/localToBlockBlob.go): a random UUID string,
// base64-standard-encoded; every call returns a new ID.
func newBlockID() string {
	return base64.StdEncoding.EncodeToString([]byte(uuid.NewString()))
}
