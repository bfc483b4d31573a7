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

package transfer_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
	"github.com/datamovement/dmcore/memorypool"
	"github.com/datamovement/dmcore/progress"
	"github.com/datamovement/dmcore/testutil"
	"github.com/datamovement/dmcore/transfer"
)

func newTestPool() *memorypool.Pool {
	return memorypool.New(16 * common.CellSize)
}

func TestSyncCopyLocalFileToRemoteBlockBlob(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	content := []byte("hello from the other side")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	fc := testutil.NewFakeBlobClient()
	tracker := progress.New()

	sot := transfer.New(
		location.LocalFile(srcPath, "src.txt"),
		location.RemoteBlob("https://acct.blob.core.windows.net/c/src.txt", common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.SyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = tracker

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	got, err := fc.GetRange(context.Background(), "https://acct.blob.core.windows.net/c/src.txt", 0, int64(len(content)))
	require.NoError(t, err)
	require.Equal(t, content, got)

	snap := tracker.Snapshot()
	require.EqualValues(t, len(content), snap.BytesTransferred)
	require.EqualValues(t, 1, snap.FilesTransferred)
}

func TestSyncCopyMultiChunkBlockBlobCommitsEveryBlock(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.bin")
	content := bytes.Repeat([]byte("0123456789"), 5) // 50 bytes
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	destURI := "https://acct.blob.core.windows.net/c/multi.bin"
	fc := testutil.NewFakeBlobClient()

	sot := transfer.New(
		location.LocalFile(srcPath, "src.bin"),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.SyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()
	sot.BlockSizeOverride = 8 // forces 7 chunks over 50 bytes

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	got, err := fc.GetRange(context.Background(), destURI, 0, int64(len(content)))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestSyncCopySkipsWhenShouldTransferReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("data"), 0o644))

	fc := testutil.NewFakeBlobClient()
	tracker := progress.New()

	sot := transfer.New(
		location.LocalFile(srcPath, "src.txt"),
		location.RemoteBlob("https://acct.blob.core.windows.net/c/src.txt", common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.SyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = tracker
	sot.ShouldTransferCallback = func(ctx context.Context) (bool, error) { return false, nil }

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.SkippedDueToShouldNotTransfer(), sot.Status())
	require.EqualValues(t, 1, tracker.Snapshot().FilesSkipped)
	require.EqualValues(t, 0, fc.ReadCount("https://acct.blob.core.windows.net/c/src.txt"))
}

func TestSyncCopySkipsExistingDestinationWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("new data"), 0o644))

	destURI := "https://acct.blob.core.windows.net/c/existing.txt"
	fc := testutil.NewFakeBlobClient()
	fc.Seed(destURI, []byte("old data"))
	tracker := progress.New()

	sot := transfer.New(
		location.LocalFile(srcPath, "src.txt"),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.SyncCopy(),
		common.EBlobType.BlockBlob(),
		false, // no blanket overwrite
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = tracker

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Skipped(), sot.Status())
	require.EqualValues(t, 1, tracker.Snapshot().FilesSkipped)

	got, err := fc.GetRange(context.Background(), destURI, 0, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("old data"), got) // untouched
}

func TestSyncCopyOverwriteCallbackCanAllowTransfer(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("new data"), 0o644))

	destURI := "https://acct.blob.core.windows.net/c/existing2.txt"
	fc := testutil.NewFakeBlobClient()
	fc.Seed(destURI, []byte("old data"))

	sot := transfer.New(
		location.LocalFile(srcPath, "src.txt"),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.SyncCopy(),
		common.EBlobType.BlockBlob(),
		false,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()
	sot.ShouldOverwriteCallback = func(ctx context.Context, destSize int64) (bool, error) {
		require.EqualValues(t, 8, destSize)
		return true, nil
	}

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	got, err := fc.GetRange(context.Background(), destURI, 0, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("new data"), got)
}

func TestRunDummyCopyMaterializesLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "a", "b", "c")

	sot := transfer.New(
		location.Location{},
		location.LocalDirectory(destPath),
		common.ETransferMethod.DummyCopy(),
		common.EBlobType.Unspecified(),
		true,
	)
	sot.Pool = newTestPool()
	sot.Progress = progress.New()

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	info, err := os.Stat(destPath)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestRunDummyCopyMaterializesRemoteDirectoryMarker(t *testing.T) {
	destURI := "https://acct.blob.core.windows.net/c/dir_marker"
	fc := testutil.NewFakeBlobClient()

	sot := transfer.New(
		location.Location{},
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.DummyCopy(),
		common.EBlobType.Unspecified(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	props, err := fc.FetchMetadata(context.Background(), destURI)
	require.NoError(t, err)
	require.True(t, props.Exists)
}

func TestServiceSideAsyncCopyCompletesViaMonitor(t *testing.T) {
	srcURI := "https://acct.blob.core.windows.net/c/async-src.bin"
	destURI := "https://acct.blob.core.windows.net/c/async-dst.bin"
	content := bytes.Repeat([]byte("x"), 1024)

	fc := testutil.NewFakeBlobClient()
	fc.Seed(srcURI, content)

	sot := transfer.New(
		location.RemoteBlob(srcURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.ServiceSideAsyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()

	resultCh := make(chan error, 1)
	go func() { resultCh <- sot.Execute(context.Background()) }()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fc.AdvanceCopy(destURI, int64(len(content)))
			case <-stop:
				return
			}
		}
	}()
	defer close(stop)

	select {
	case err := <-resultCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server-side copy to complete via Monitor")
	}

	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())
}

func TestServiceSideSyncCopyFailsWhenNotImmediatelyComplete(t *testing.T) {
	srcURI := "https://acct.blob.core.windows.net/c/sync-src.bin"
	destURI := "https://acct.blob.core.windows.net/c/sync-dst.bin"
	fc := testutil.NewFakeBlobClient()
	fc.Seed(srcURI, []byte("payload"))

	sot := transfer.New(
		location.RemoteBlob(srcURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.ServiceSideSyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()

	// FakeBlobClient never completes a copy except via an explicit AdvanceCopy
	// call, so a service contract that promises synchronous completion is
	// violated here and the transfer must fail rather than hang.
	err := sot.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, common.ETransferStatus.Failed(), sot.Status())
}

func TestMonitorDetectsStall(t *testing.T) {
	srcURI := "https://acct.blob.core.windows.net/c/stall-src.bin"
	destURI := "https://acct.blob.core.windows.net/c/stall-dst.bin"
	fc := testutil.NewFakeBlobClient()
	fc.Seed(srcURI, bytes.Repeat([]byte("y"), 4096))
	fc.StallCopy = true

	sot := transfer.New(
		location.RemoteBlob(srcURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		location.RemoteBlob(destURI, common.EBlobType.BlockBlob(), nil, location.RequestOptions{}),
		common.ETransferMethod.ServiceSideAsyncCopy(),
		common.EBlobType.BlockBlob(),
		true,
	)
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sot.Execute(ctx)
	require.Error(t, err)
}

func TestResumeFailedWithoutCopyIDRepositionsToTransfer(t *testing.T) {
	rec := checkpoint.TransferRecord{
		Source:      checkpoint.LocationRecord{Kind: common.ELocation.LocalFile(), Path: "/tmp/x"},
		Destination: checkpoint.LocationRecord{Kind: common.ELocation.RemoteBlob(), URI: "https://a/b"},
		Method:      common.ETransferMethod.SyncCopy(),
		Status:      common.ETransferStatus.Failed(),
	}
	sot := transfer.Resume(rec)
	require.Equal(t, common.ETransferStatus.Transfer(), sot.Status())
}

func TestResumeFailedWithCopyIDRepositionsToMonitor(t *testing.T) {
	rec := checkpoint.TransferRecord{
		Source:      checkpoint.LocationRecord{Kind: common.ELocation.RemoteBlob(), URI: "https://a/src"},
		Destination: checkpoint.LocationRecord{Kind: common.ELocation.RemoteBlob(), URI: "https://a/dst"},
		Method:      common.ETransferMethod.ServiceSideAsyncCopy(),
		Status:      common.ETransferStatus.Failed(),
		CopyID:      "copy-123",
	}
	sot := transfer.Resume(rec)
	require.Equal(t, common.ETransferStatus.Monitor(), sot.Status())
}

func TestResumeNonBlockBlobHonorsWindowAndSkipsCompletedChunks(t *testing.T) {
	srcURI := "https://acct.blob.core.windows.net/c/resume-src.bin"
	destURI := "https://acct.blob.core.windows.net/c/resume-dst.bin"
	chunk := int64(16)
	content := bytes.Repeat([]byte("z"), int(chunk*3)) // 3 chunks

	fc := testutil.NewFakeBlobClient()
	fc.Seed(srcURI, content)
	// Simulate the first chunk having already been durably written in a prior
	// attempt, including on the destination, before the journal recorded it.
	require.NoError(t, fc.PutPageOrAppend(context.Background(), destURI, 0, content[:chunk]))
	before := fc.ReadCount(srcURI)

	srcRec, err := checkpoint.EncodeLocation(location.RemoteBlob(srcURI, common.EBlobType.PageBlob(), nil, location.RequestOptions{}))
	require.NoError(t, err)
	dstRec, err := checkpoint.EncodeLocation(location.RemoteBlob(destURI, common.EBlobType.PageBlob(), nil, location.RequestOptions{}))
	require.NoError(t, err)

	rec := checkpoint.TransferRecord{
		Source:      srcRec,
		Destination: dstRec,
		Method:      common.ETransferMethod.SyncCopy(),
		Status:      common.ETransferStatus.Transfer(),
		Overwrite:   true,
		Window:      []checkpoint.ChunkRange{{Offset: 0, Length: chunk}},
	}

	sot := transfer.Resume(rec)
	sot.BlobType = common.EBlobType.PageBlob()
	sot.Client = fc
	sot.Pool = newTestPool()
	sot.Progress = progress.New()
	sot.BlockSizeOverride = chunk

	require.NoError(t, sot.Execute(context.Background()))
	require.Equal(t, common.ETransferStatus.Finished(), sot.Status())

	// Only the two remaining chunks should have been read from the source; the
	// already-completed first chunk must not be re-read.
	require.EqualValues(t, before+2, fc.ReadCount(srcURI))

	got, err := fc.GetRange(context.Background(), destURI, 0, int64(len(content)))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestToRecordRoundTripsSourceAndDestination(t *testing.T) {
	src := location.LocalFile("/tmp/a.txt", "a.txt")
	dst := location.RemoteBlob("https://acct.blob.core.windows.net/c/a.txt", common.EBlobType.BlockBlob(), nil, location.RequestOptions{})

	sot := transfer.New(src, dst, common.ETransferMethod.SyncCopy(), common.EBlobType.BlockBlob(), true)
	rec, err := sot.ToRecord()
	require.NoError(t, err)

	require.Equal(t, src, rec.Source.Decode())
	require.Equal(t, dst.Kind, rec.Destination.Decode().Kind)
	require.Equal(t, dst.URI, rec.Destination.Decode().URI)
	require.Equal(t, common.ETransferMethod.SyncCopy(), rec.Method)
	require.True(t, rec.Overwrite)
}
