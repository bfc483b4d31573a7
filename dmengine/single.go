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

	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
	"github.com/datamovement/dmcore/transfer"
)

// runSingle is the shared body behind Upload, Download and Copy: validate both
// locations, register the transfer under its (source, dest) key, build a
// transfer.SingleObjectTransfer wired to the manager's shared Client/Pool, run it to
// a terminal state via the shared Scheduler, and unregister it regardless of
// outcome — §4.10's entry-point pattern.
func (m *Manager) runSingle(
	ctx context.Context,
	source, dest location.Location,
	method common.TransferMethod,
	blobType common.BlobType,
	overwrite bool,
	configure func(*transfer.SingleObjectTransfer),
) error {
	if err := source.Validate(); err != nil {
		return common.WrapTransferError(common.EErrorCode.PathCustomValidationFailed(), err, "source location")
	}
	if err := dest.Validate(); err != nil {
		return common.WrapTransferError(common.EErrorCode.PathCustomValidationFailed(), err, "destination location")
	}

	key := common.NewTransferKey(source.Identity(), dest.Identity())

	srcRec, err := checkpoint.EncodeLocation(source)
	if err != nil {
		return err
	}
	dstRec, err := checkpoint.EncodeLocation(dest)
	if err != nil {
		return err
	}

	entry, err := m.register(key, checkpoint.TransferRecord{
		Source:      srcRec,
		Destination: dstRec,
		Method:      method,
		Status:      common.ETransferStatus.NotStarted(),
		Overwrite:   overwrite,
	})
	if err != nil {
		return err
	}
	defer m.unregister(key)

	sot := transfer.New(source, dest, method, blobType, overwrite)
	sot.Client = m.client
	sot.Pool = m.pool
	sot.Progress = entry.Progress
	sot.Checkpoint = func(rec checkpoint.TransferRecord) error {
		entry.Record = rec
		return nil
	}
	if configure != nil {
		configure(sot)
	}

	return <-sot.ExecuteAsync(ctx, m.scheduler)
}

// resumeSingle rebuilds a SingleObjectTransfer from a previously journaled record and
// runs it to completion, registering it under the same key a fresh run of the same
// source/destination pair would use so TransferAlreadyExists still applies.
func (m *Manager) resumeSingle(ctx context.Context, rec checkpoint.TransferRecord) error {
	key := common.NewTransferKey(rec.Source.Decode().Identity(), rec.Destination.Decode().Identity())

	entry, err := m.register(key, rec)
	if err != nil {
		return err
	}
	defer m.unregister(key)

	sot := transfer.Resume(rec)
	sot.Client = m.client
	sot.Pool = m.pool
	sot.Progress = entry.Progress
	sot.Checkpoint = func(r checkpoint.TransferRecord) error {
		entry.Record = r
		return nil
	}

	return <-sot.ExecuteAsync(ctx, m.scheduler)
}
