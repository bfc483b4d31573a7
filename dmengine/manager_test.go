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

package dmengine_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/blobclient"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/dmengine"
	"github.com/datamovement/dmcore/testutil"
)

func testConfig() common.Config {
	return common.Config{MaximumCacheSize: 16 * common.CellSize}
}

func TestNewManagerAppliesConfigDefaults(t *testing.T) {
	m := dmengine.NewManager(common.Config{}, testutil.NewFakeBlobClient(), nil)
	require.Greater(t, m.Config().ParallelOperations, 0)
	require.Equal(t, int64(common.DefaultBlockSize), m.Config().BlockSize)
	require.NotNil(t, m.Pool())
	require.Equal(t, 0, m.ActiveTransfers())
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	content := []byte("round trip content")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	fc := testutil.NewFakeBlobClient()
	m := dmengine.NewManager(testConfig(), fc, nil)
	destURI := "https://acct.blob.core.windows.net/c/src.txt"

	require.NoError(t, m.Upload(context.Background(), srcPath, destURI, dmengine.UploadOptions{Overwrite: true}))
	require.Equal(t, 0, m.ActiveTransfers())

	downloadPath := filepath.Join(dir, "dst.txt")
	require.NoError(t, m.Download(context.Background(), destURI, downloadPath, dmengine.DownloadOptions{Overwrite: true}))
	require.Equal(t, 0, m.ActiveTransfers())

	got, err := os.ReadFile(downloadPath)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// Bounded memory: every cell reserved for the transfer must have been released.
	require.Equal(t, int64(0), m.Pool().InUse())
}

func TestUploadRejectsOverwriteFalseOnExistingDestination(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("new"), 0o644))

	fc := testutil.NewFakeBlobClient()
	destURI := "https://acct.blob.core.windows.net/c/src.txt"
	fc.Seed(destURI, []byte("old"))

	m := dmengine.NewManager(testConfig(), fc, nil)
	err := m.Upload(context.Background(), srcPath, destURI, dmengine.UploadOptions{Overwrite: false})
	require.Error(t, err)
	require.Equal(t, 0, m.ActiveTransfers())
}

// blockingBlobClient delays every PutBlock until release is closed, letting a test
// hold a transfer open long enough to observe a second call racing the same key.
type blockingBlobClient struct {
	*testutil.FakeBlobClient
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBlobClient) PutBlock(ctx context.Context, blobURI, blockID string, offset int64, data, md5 []byte) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.FakeBlobClient.PutBlock(ctx, blobURI, blockID, offset, data, md5)
}

var _ blobclient.BlobClient = (*blockingBlobClient)(nil)

func TestUploadRejectsDuplicateActiveTransfer(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(srcPath, bytes.Repeat([]byte("x"), 1024), 0o644))

	fc := &blockingBlobClient{
		FakeBlobClient: testutil.NewFakeBlobClient(),
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	m := dmengine.NewManager(testConfig(), fc, nil)
	destURI := "https://acct.blob.core.windows.net/c/src.txt"

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- m.Upload(context.Background(), srcPath, destURI, dmengine.UploadOptions{Overwrite: true})
	}()

	<-fc.entered // first upload is now mid-flight, holding the (source, dest) registration

	err := m.Upload(context.Background(), srcPath, destURI, dmengine.UploadOptions{Overwrite: true})
	require.Error(t, err)
	require.Equal(t, common.EErrorCode.TransferAlreadyExists(), common.CodeOf(err))

	close(fc.release)
	require.NoError(t, <-firstErr)
}

func TestCopyMovesBlobServerSide(t *testing.T) {
	fc := testutil.NewFakeBlobClient()
	srcURI := "https://acct.blob.core.windows.net/c/src.bin"
	destURI := "https://acct.blob.core.windows.net/c/dst.bin"
	content := bytes.Repeat([]byte("y"), 2048)
	fc.Seed(srcURI, content)

	m := dmengine.NewManager(testConfig(), fc, nil)

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- m.Copy(context.Background(), srcURI, destURI, dmengine.CopyOptions{Overwrite: true})
	}()
	advanceCopyUntilDone(t, resultCh, fc, destURI, int64(len(content)))

	props, err := fc.FetchMetadata(context.Background(), destURI)
	require.NoError(t, err)
	require.True(t, props.Exists)
	require.Equal(t, int64(len(content)), props.Length)
}
