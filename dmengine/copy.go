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

// CopyOptions configures a single blob-to-blob, service-side transfer.
type CopyOptions struct {
	Overwrite bool
	BlobType  common.BlobType

	// Sync requests the protocol's synchronous variant (ServiceSideSyncCopy, a
	// single completion check) instead of the default asynchronous variant
	// (ServiceSideAsyncCopy, full Monitor polling) — the teacher's
	// --s2s-preserve-access-tier-style boolean-flag-selects-sub-protocol shape,
	// generalized from copy/sync command selection to a single option field since
	// this engine exposes both through one Copy entry point rather than separate
	// copy and sync commands.
	Sync bool

	Credentials    azcore.TokenCredential
	RequestOptions location.RequestOptions

	ShouldTransferCallback  transfer.ShouldTransferFunc
	ShouldOverwriteCallback transfer.ShouldOverwriteFunc
}

func (o CopyOptions) method() common.TransferMethod {
	if o.Sync {
		return common.ETransferMethod.ServiceSideSyncCopy()
	}
	return common.ETransferMethod.ServiceSideAsyncCopy()
}

// Copy moves one blob to another blob entirely server-side, blocking until the
// transfer reaches a terminal state.
func (m *Manager) Copy(ctx context.Context, sourceURI, destURI string, opts CopyOptions) error {
	source := location.RemoteBlob(sourceURI, opts.BlobType, opts.Credentials, opts.RequestOptions)
	dest := location.RemoteBlob(destURI, opts.BlobType, opts.Credentials, opts.RequestOptions)
	return m.runSingle(ctx, source, dest, opts.method(), opts.BlobType, opts.Overwrite, func(sot *transfer.SingleObjectTransfer) {
		sot.ShouldTransferCallback = opts.ShouldTransferCallback
		sot.ShouldOverwriteCallback = opts.ShouldOverwriteCallback
	})
}
