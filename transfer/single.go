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

// Package transfer implements C6 (SingleObjectTransfer) and C7 (directory
// transfers), §4.5/§4.6. A SingleObjectTransfer's Execute drives the
// NotStarted -> ShouldTransferCheck -> Transfer -> Monitor? -> terminal state
// machine; a directory transfer enumerates entries and wraps each file as one.
package transfer

import (
	"context"
	"crypto/md5"
	"io"
	"os"
	"sync"
	"time"

	"github.com/datamovement/dmcore/blobclient"
	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
	"github.com/datamovement/dmcore/memorypool"
	"github.com/datamovement/dmcore/progress"
	"github.com/datamovement/dmcore/scheduler"
)

// ShouldTransferFunc is the user hook consulted before a transfer starts, §4.5's
// ShouldTransferCallback. A false return skips the transfer without it counting as
// a failure.
type ShouldTransferFunc func(ctx context.Context) (bool, error)

// ShouldOverwriteFunc is consulted only when the destination already exists, §4.5's
// ShouldOverwriteCallback.
type ShouldOverwriteFunc func(ctx context.Context, destSize int64) (bool, error)

// CheckpointFunc persists rec after every durable state change (chunk completion,
// status transition). A nil CheckpointFunc means "run without a journal" — valid
// for one-shot, non-resumable transfers and for tests.
type CheckpointFunc func(rec checkpoint.TransferRecord) error

// SingleObjectTransfer is C6: the state machine that moves exactly one file (or
// materializes exactly one directory marker) between a source and destination
// location, grounded on ste/mgr-JobPartTransferMgr.go's per-transfer lifecycle and
// ste/localToBlockBlob.go / ste/downloader-blob.go's chunked read/write loop.
type SingleObjectTransfer struct {
	Source      location.Location
	Destination location.Location
	Method      common.TransferMethod
	BlobType    common.BlobType
	Overwrite   bool

	// StoreContentMD5 gates the per-chunk MD5 passed to PutBlock during block-blob
	// SyncCopy uploads, mirroring ste/md5Comparer.go's StoreBlobContentMD5 flag. No
	// MD5 of the whole object is computed.
	StoreContentMD5 bool

	// BlockSizeOverride forces a specific chunk size instead of ComputeBlockSize's
	// auto-tuned result, mirroring the teacher's --block-size-mb flag
	// (cmd/copy.go's blockSize). Zero means auto-tune.
	BlockSizeOverride int64

	Client   blobclient.BlobClient
	Pool     *memorypool.Pool
	Progress *progress.Tracker

	ShouldTransferCallback  ShouldTransferFunc
	ShouldOverwriteCallback ShouldOverwriteFunc

	Checkpoint CheckpointFunc

	mu        sync.Mutex
	status    common.TransferStatus
	window    []checkpoint.ChunkRange
	copyID    string
	blockSize int64
	size      int64
}

// New builds a fresh SingleObjectTransfer in NotStarted.
func New(source, dest location.Location, method common.TransferMethod, blobType common.BlobType, overwrite bool) *SingleObjectTransfer {
	return &SingleObjectTransfer{
		Source:      source,
		Destination: dest,
		Method:      method,
		BlobType:    blobType,
		Overwrite:   overwrite,
		status:      common.ETransferStatus.NotStarted(),
	}
}

// Resume reconstructs a SingleObjectTransfer from a previously journaled record,
// applying the "Failed repositions to Transfer if copyId unset, else Monitor"
// resume rule of §4.5.
func Resume(rec checkpoint.TransferRecord) *SingleObjectTransfer {
	t := &SingleObjectTransfer{
		Source:      rec.Source.Decode(),
		Destination: rec.Destination.Decode(),
		Method:      rec.Method,
		BlobType:    rec.Source.BlobType,
		Overwrite:   rec.Overwrite,
		status:      rec.Status,
		window:      append([]checkpoint.ChunkRange(nil), rec.Window...),
		copyID:      rec.CopyID,
	}
	if t.status.DidFail() {
		if t.copyID == "" {
			t.status = common.ETransferStatus.Transfer()
		} else {
			t.status = common.ETransferStatus.Monitor()
		}
	}
	return t
}

// Status returns the transfer's current state, safe for concurrent reads.
func (t *SingleObjectTransfer) Status() common.TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ToRecord snapshots the transfer's durable state for journaling.
func (t *SingleObjectTransfer) ToRecord() (checkpoint.TransferRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, err := checkpoint.EncodeLocation(t.Source)
	if err != nil {
		return checkpoint.TransferRecord{}, err
	}
	dst, err := checkpoint.EncodeLocation(t.Destination)
	if err != nil {
		return checkpoint.TransferRecord{}, err
	}
	return checkpoint.TransferRecord{
		Source:      src,
		Destination: dst,
		Method:      t.Method,
		Status:      t.status,
		Overwrite:   t.Overwrite,
		CopyID:      t.copyID,
		Window:      append([]checkpoint.ChunkRange(nil), t.window...),
	}, nil
}

func (t *SingleObjectTransfer) setStatus(s common.TransferStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	t.persist()
}

func (t *SingleObjectTransfer) persist() {
	if t.Checkpoint == nil {
		return
	}
	rec, err := t.ToRecord()
	if err != nil {
		return
	}
	_ = t.Checkpoint(rec)
}

// Execute drives the full state machine to a terminal status, returning the error
// that caused Failed (if any). Skipped/SkippedDueToShouldNotTransfer terminations
// are not reported as errors — callers read Status() to distinguish them.
func (t *SingleObjectTransfer) Execute(ctx context.Context) error {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()

	if status == common.ETransferStatus.NotStarted() {
		ok, err := t.checkShouldTransfer(ctx)
		if err != nil {
			return t.fail(err)
		}
		if !ok {
			t.setStatus(common.ETransferStatus.SkippedDueToShouldNotTransfer())
			t.Progress.AddFilesSkipped(1)
			return nil
		}
		if err := t.checkOverwrite(ctx); err != nil {
			if common.IsSkip(err) {
				t.setStatus(common.ETransferStatus.Skipped())
				t.Progress.AddFilesSkipped(1)
				return nil
			}
			return t.fail(err)
		}
		t.setStatus(common.ETransferStatus.Transfer())
	}

	for {
		t.mu.Lock()
		status = t.status
		t.mu.Unlock()

		if status.IsTerminal() {
			return nil
		}

		var err error
		switch status {
		case common.ETransferStatus.Transfer():
			err = t.runTransfer(ctx)
		case common.ETransferStatus.Monitor():
			err = t.runMonitor(ctx)
		default:
			return nil
		}
		if err != nil {
			if common.IsSkip(err) {
				t.setStatus(common.ETransferStatus.Skipped())
				t.Progress.AddFilesSkipped(1)
				return nil
			}
			return t.fail(err)
		}
	}
}

// ExecuteAsync submits t.Execute to sched instead of running it on the caller's own
// goroutine, §4.10's manager pattern of routing every transfer through the single
// process-wide Scheduler (C8). The returned channel receives exactly one value: the
// same error Execute would have returned, or ctx.Err() if ctx is cancelled before the
// job is ever admitted (Scheduler.Submit drops abandoned jobs silently, so this
// package must watch ctx itself to avoid leaving the channel empty forever).
func (t *SingleObjectTransfer) ExecuteAsync(ctx context.Context, sched *scheduler.Scheduler) <-chan error {
	done := make(chan error, 1)
	var once sync.Once
	send := func(err error) { once.Do(func() { done <- err }) }

	sched.Submit(ctx, scheduler.Job{
		Run: func(jobCtx context.Context, _ []*memorypool.Cell) {
			send(t.Execute(jobCtx))
		},
	})
	go func() {
		<-ctx.Done()
		send(ctx.Err())
	}()
	return done
}

func (t *SingleObjectTransfer) fail(err error) error {
	t.setStatus(common.ETransferStatus.Failed())
	t.Progress.AddFilesFailed(1)
	return err
}

func (t *SingleObjectTransfer) checkShouldTransfer(ctx context.Context) (bool, error) {
	if t.ShouldTransferCallback == nil {
		return true, nil
	}
	ok, err := t.ShouldTransferCallback(ctx)
	if err != nil {
		return false, common.WrapTransferError(common.EErrorCode.FailedCheckingShouldTransfer(), err, "should-transfer check")
	}
	return ok, nil
}

func (t *SingleObjectTransfer) checkOverwrite(ctx context.Context) error {
	exists, size, err := t.destinationExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if t.Overwrite {
		return nil
	}
	if t.ShouldOverwriteCallback != nil {
		ok, err := t.ShouldOverwriteCallback(ctx, size)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return common.NewTransferError(common.EErrorCode.NotOverwriteExistingDestination(), nil)
}

func (t *SingleObjectTransfer) destinationExists(ctx context.Context) (exists bool, size int64, err error) {
	switch t.Destination.Kind {
	case common.ELocation.LocalFile():
		info, err := os.Stat(t.Destination.Path)
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		if err != nil {
			return false, 0, err
		}
		return true, info.Size(), nil
	case common.ELocation.RemoteBlob():
		props, err := t.Client.FetchMetadata(ctx, t.Destination.URI)
		if err != nil {
			return false, 0, err
		}
		return props.Exists, props.Length, nil
	default:
		return false, 0, nil
	}
}

func (t *SingleObjectTransfer) sourceSize(ctx context.Context) (int64, error) {
	switch t.Source.Kind {
	case common.ELocation.LocalFile():
		info, err := os.Stat(t.Source.Path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case common.ELocation.RemoteBlob():
		props, err := t.Client.FetchMetadata(ctx, t.Source.URI)
		if err != nil {
			return 0, err
		}
		return props.Length, nil
	default:
		return 0, nil
	}
}

func (t *SingleObjectTransfer) runTransfer(ctx context.Context) error {
	if t.Method == common.ETransferMethod.DummyCopy() {
		return t.runDummyCopy(ctx)
	}

	size, err := t.sourceSize(ctx)
	if err != nil {
		return err
	}
	t.size = size
	if err := ValidateObjectSize(size, t.BlobType); err != nil {
		return err
	}

	switch t.Method {
	case common.ETransferMethod.ServiceSideAsyncCopy():
		return t.startServerCopy(ctx)
	case common.ETransferMethod.ServiceSideSyncCopy():
		return t.runServiceSideSyncCopy(ctx)
	default: // SyncCopy
		return t.runSyncCopy(ctx, size)
	}
}

// runDummyCopy materializes a zero-byte directory placeholder, §3's DummyCopy
// method for directory markers encountered during enumeration.
func (t *SingleObjectTransfer) runDummyCopy(ctx context.Context) error {
	switch t.Destination.Kind {
	case common.ELocation.LocalDirectory(), common.ELocation.LocalFile():
		if err := os.MkdirAll(t.Destination.Path, 0o755); err != nil {
			return err
		}
	case common.ELocation.RemoteBlob(), common.ELocation.RemoteBlobDirectory():
		if err := t.Client.PutPageOrAppend(ctx, t.Destination.URI, 0, nil); err != nil {
			return err
		}
	}
	t.setStatus(common.ETransferStatus.Finished())
	t.Progress.AddFilesTransferred(1)
	return nil
}

func (t *SingleObjectTransfer) startServerCopy(ctx context.Context) error {
	copyID, err := t.Client.StartServerCopy(ctx, t.Source.URI, t.Destination.URI)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.copyID = copyID
	t.mu.Unlock()
	t.setStatus(common.ETransferStatus.Monitor())
	return nil
}

// runServiceSideSyncCopy issues the same start-copy call as the async path but the
// protocol contract for this method (§3) is that the service completes the copy
// synchronously with the request, so a single status check suffices instead of the
// full polling loop.
func (t *SingleObjectTransfer) runServiceSideSyncCopy(ctx context.Context) error {
	copyID, err := t.Client.StartServerCopy(ctx, t.Source.URI, t.Destination.URI)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.copyID = copyID
	t.mu.Unlock()

	status, err := t.Client.GetCopyStatus(ctx, t.Destination.URI)
	if err != nil {
		return err
	}
	if status.Status != blobclient.CopyStatusSuccess {
		return common.NewTransferError(common.EErrorCode.TransferStuck(), nil)
	}
	t.setStatus(common.ETransferStatus.Finished())
	t.Progress.AddBytes(status.TotalBytes)
	t.Progress.AddFilesTransferred(1)
	return nil
}

// runSyncCopy performs the chunked, client-mediated byte transfer of §4.5: read
// aligned chunks through memory-pool cells, optionally hash them, write them to the
// destination, and checkpoint after each chunk commits.
func (t *SingleObjectTransfer) runSyncCopy(ctx context.Context, size int64) error {
	blockSize := t.blockSize
	if blockSize == 0 {
		switch {
		case t.BlockSizeOverride > 0:
			blockSize = t.BlockSizeOverride
		case t.BlobType == common.EBlobType.BlockBlob():
			blockSize = ComputeBlockSize(size)
		default:
			blockSize = common.MinBlockSize
		}
		t.blockSize = blockSize
	}

	reader, closeReader, err := t.openSourceReader(ctx)
	if err != nil {
		return err
	}
	defer closeReader()

	writer, closeWriter, err := t.openDestinationWriter(ctx, size)
	if err != nil {
		return err
	}
	defer closeWriter()

	hasher := newConditionalHasher(t.StoreContentMD5)

	var blockIDs []string
	isBlockBlob := t.Destination.Kind != common.ELocation.LocalFile() && t.BlobType == common.EBlobType.BlockBlob()

	// Block-blob resume needs the committed block ID for every already-uploaded
	// chunk, and checkpoint.ChunkRange (§4.7) carries only offset/length, not a
	// block ID — so a block-blob SyncCopy resumed mid-flight restarts its block
	// upload from scratch rather than risk committing a stale or mismatched block
	// list. Page/append and local-file destinations are offset-addressed and
	// idempotent, so their window is honored for a real skip-ahead resume.
	var alreadyDone map[int64]bool
	if isBlockBlob {
		t.mu.Lock()
		t.window = nil
		t.mu.Unlock()
	} else {
		t.mu.Lock()
		alreadyDone = rangeSetOf(t.window)
		t.mu.Unlock()
	}

	cellsPerChunk := int((blockSize + common.CellSize - 1) / common.CellSize)

	for offset := int64(0); offset < size || size == 0; offset += blockSize {
		length := blockSize
		if offset+length > size {
			length = size - offset
		}
		if length <= 0 {
			break
		}
		if alreadyDone[offset] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		cells, err := t.Pool.Reserve(ctx, cellsPerChunk)
		if err != nil {
			return err
		}
		buf, err := readChunk(reader, offset, length, cells)
		t.Pool.Release(cells)
		if err != nil {
			return err
		}

		hasher.write(buf)

		if isBlockBlob {
			id := newBlockID()
			if err := t.Client.PutBlock(ctx, t.Destination.URI, id, offset, buf, hasher.chunkSum(buf)); err != nil {
				return err
			}
			blockIDs = append(blockIDs, id)
		} else if err := writeChunk(writer, offset, buf); err != nil {
			return err
		}

		t.recordChunkDone(offset, length)
		t.Progress.AddBytes(length)

		if size == 0 {
			break
		}
	}

	if isBlockBlob {
		overwrite := t.Overwrite
		if err := t.Client.CommitBlockList(ctx, t.Destination.URI, blockIDs, overwrite); err != nil {
			return err
		}
	}

	t.setStatus(common.ETransferStatus.Finished())
	t.Progress.AddFilesTransferred(1)
	return nil
}

func (t *SingleObjectTransfer) recordChunkDone(offset, length int64) {
	t.mu.Lock()
	t.window = checkpoint.TrimWindow(append(t.window, checkpoint.ChunkRange{Offset: offset, Length: length}))
	t.mu.Unlock()
	t.persist()
}

func rangeSetOf(w []checkpoint.ChunkRange) map[int64]bool {
	m := make(map[int64]bool, len(w))
	for _, r := range w {
		m[r.Offset] = true
	}
	return m
}

// openSourceReader returns an io.ReaderAt-like function reading from the source,
// local file or remote blob, plus a close func.
func (t *SingleObjectTransfer) openSourceReader(ctx context.Context) (chunkReader, func(), error) {
	switch t.Source.Kind {
	case common.ELocation.LocalFile():
		f, err := os.Open(t.Source.Path)
		if err != nil {
			return nil, func() {}, err
		}
		return func(offset, length int64, dst []byte) ([]byte, error) {
			n, err := f.ReadAt(dst[:length], offset)
			if err != nil && err != io.EOF {
				return nil, err
			}
			return dst[:n], nil
		}, func() { _ = f.Close() }, nil
	case common.ELocation.RemoteBlob():
		return func(offset, length int64, dst []byte) ([]byte, error) {
			data, err := t.Client.GetRange(ctx, t.Source.URI, offset, length)
			return data, err
		}, func() {}, nil
	default:
		return func(offset, length int64, dst []byte) ([]byte, error) { return nil, nil }, func() {}, nil
	}
}

// openDestinationWriter returns a chunkWriter for non-block-blob destinations
// (local files, page/append blobs); block blobs are committed via PutBlock instead.
func (t *SingleObjectTransfer) openDestinationWriter(ctx context.Context, size int64) (chunkWriter, func(), error) {
	switch t.Destination.Kind {
	case common.ELocation.LocalFile():
		if err := os.MkdirAll(dirOf(t.Destination.Path), 0o755); err != nil {
			return nil, func() {}, err
		}
		f, err := os.OpenFile(t.Destination.Path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, func() {}, err
		}
		if size > 0 {
			_ = f.Truncate(size)
		}
		return func(offset int64, data []byte) error {
			_, err := f.WriteAt(data, offset)
			return err
		}, func() { _ = f.Close() }, nil
	case common.ELocation.RemoteBlob():
		return func(offset int64, data []byte) error {
			return t.Client.PutPageOrAppend(ctx, t.Destination.URI, offset, data)
		}, func() {}, nil
	default:
		return func(offset int64, data []byte) error { return nil }, func() {}, nil
	}
}

type chunkReader func(offset, length int64, dst []byte) ([]byte, error)
type chunkWriter func(offset int64, data []byte) error

// readChunk fills cells sequentially (CellSize bytes at a time) and returns the
// contiguous slice read, draining unused cells at the end of a final short read.
func readChunk(read chunkReader, offset, length int64, cells []*memorypool.Cell) ([]byte, error) {
	out := make([]byte, 0, length)
	remaining := length
	pos := offset
	for _, cell := range cells {
		if remaining <= 0 {
			break
		}
		take := int64(len(cell.Buf))
		if take > remaining {
			take = remaining
		}
		got, err := read(pos, take, cell.Buf[:take])
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
		pos += int64(len(got))
		remaining -= int64(len(got))
		if int64(len(got)) < take {
			break
		}
	}
	return out, nil
}

func writeChunk(write chunkWriter, offset int64, data []byte) error {
	return write(offset, data)
}

func dirOf(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// conditionalHasher computes, only when enabled, a per-chunk MD5 for PutBlock's
// content-MD5 argument, mirroring ste/md5Comparer.go's opt-in check. No MD5 of the
// whole object is computed.
type conditionalHasher struct {
	enabled bool
}

func newConditionalHasher(enabled bool) *conditionalHasher {
	return &conditionalHasher{enabled: enabled}
}

func (h *conditionalHasher) write(buf []byte) {
	// Whole-transfer MD5 is accumulated by the destination's CommitBlockList /
	// final GetRange verification in a full implementation; this engine computes
	// it per-chunk for PutBlock's integrity argument, which is the only place the
	// BlobClient contract (§6) exposes an MD5 parameter.
}

func (h *conditionalHasher) chunkSum(buf []byte) []byte {
	if !h.enabled {
		return nil
	}
	sum := md5.Sum(buf)
	return sum[:]
}

// runMonitor polls CopyStatus with exponential back-off, §4.5's Monitor transition.
func (t *SingleObjectTransfer) runMonitor(ctx context.Context) error {
	waitMs := int64(common.CopyStatusRefreshMinWaitMs)
	requestCount := 0
	var lastBytesCopied int64 = -1
	stallDeadline := time.Now().Add(stallWindow())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := t.Client.GetCopyStatus(ctx, t.Destination.URI)
		if err != nil {
			return err
		}

		switch status.Status {
		case blobclient.CopyStatusSuccess:
			t.setStatus(common.ETransferStatus.Finished())
			t.Progress.AddBytes(status.TotalBytes)
			t.Progress.AddFilesTransferred(1)
			return nil
		case blobclient.CopyStatusAborted, blobclient.CopyStatusFailed:
			return common.NewTransferError(common.EErrorCode.TransferStuck(), nil)
		}

		if status.BytesCopied > lastBytesCopied {
			lastBytesCopied = status.BytesCopied
			stallDeadline = time.Now().Add(stallWindow())
		} else if time.Now().After(stallDeadline) {
			return common.NewTransferError(common.EErrorCode.TransferStuck(), nil)
		}

		remaining := status.TotalBytes - status.BytesCopied
		if remaining <= common.CopyApproachingFinishThresholdBytes {
			waitMs = common.CopyStatusRefreshMinWaitMs
		}

		requestCount++
		if requestCount > common.CopyStatusRefreshMaxRequestCount {
			requestCount = common.CopyStatusRefreshMaxRequestCount
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}

		waitMs *= 2
		if waitMs > common.CopyStatusRefreshMaxWaitMs {
			waitMs = common.CopyStatusRefreshMaxWaitMs
		}
	}
}

func stallWindow() time.Duration {
	return common.DefaultStallWindow()
}
