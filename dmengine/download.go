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

package dmengine

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
	"github.com/datamovement/dmcore/transfer"
)

// DownloadOptions configures a single blob-to-local-file transfer.
type DownloadOptions struct {
	Overwrite bool
	// SourceBlobType informs ValidateObjectSize's per-type size ceiling; leave at
	// common.EBlobType.Unspecified() to skip that check (the local destination has no
	// block-count limit of its own to enforce).
	SourceBlobType    common.BlobType
	BlockSizeOverride int64
	StoreContentMD5   bool

	Credentials    azcore.TokenCredential
	RequestOptions location.RequestOptions

	ShouldTransferCallback  transfer.ShouldTransferFunc
	ShouldOverwriteCallback transfer.ShouldOverwriteFunc
}

// Download moves one blob to one local file, blocking until the transfer reaches a
// terminal state.
func (m *Manager) Download(ctx context.Context, sourceURI, destPath string, opts DownloadOptions) error {
	source := location.RemoteBlob(sourceURI, opts.SourceBlobType, opts.Credentials, opts.RequestOptions)
	dest := location.LocalFile(destPath, "")
	return m.runSingle(ctx, source, dest, common.ETransferMethod.SyncCopy(), opts.SourceBlobType, opts.Overwrite, func(sot *transfer.SingleObjectTransfer) {
		sot.BlockSizeOverride = opts.BlockSizeOverride
		sot.StoreContentMD5 = opts.StoreContentMD5
		sot.ShouldTransferCallback = opts.ShouldTransferCallback
		sot.ShouldOverwriteCallback = opts.ShouldOverwriteCallback
	})
}
