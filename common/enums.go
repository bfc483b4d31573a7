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

package common

import (
	"encoding/json"
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ELogLevel = LogLevel(0)

// LogLevel is the minimum severity a message needs in order to be written to a job's log.
type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Panic() LogLevel   { return LogLevel(1) }
func (LogLevel) Error() LogLevel   { return LogLevel(2) }
func (LogLevel) Warning() LogLevel { return LogLevel(3) }
func (LogLevel) Info() LogLevel    { return LogLevel(4) }
func (LogLevel) Debug() LogLevel   { return LogLevel(5) }

func (ll LogLevel) String() string {
	switch ll {
	case ELogLevel.None():
		return "NONE"
	case ELogLevel.Panic():
		return "PANIC"
	case ELogLevel.Error():
		return "ERR"
	case ELogLevel.Warning():
		return "WARN"
	case ELogLevel.Info():
		return "INFO"
	case ELogLevel.Debug():
		return "DBG"
	default:
		return enum.StringInt(ll, reflect.TypeOf(ll))
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EJobStatus = JobStatus(0)

// JobStatus is the status of a top-level transfer, tracked in the checkpoint and
// surfaced to the caller's ProgressHandler. Must stay 32-bit: it is updated
// with atomic loads/stores from multiple goroutines.
type JobStatus uint32

func (JobStatus) InProgress() JobStatus                    { return JobStatus(0) }
func (JobStatus) Cancelling() JobStatus                    { return JobStatus(1) }
func (JobStatus) Cancelled() JobStatus                     { return JobStatus(2) }
func (JobStatus) Completed() JobStatus                     { return JobStatus(3) }
func (JobStatus) CompletedWithErrors() JobStatus            { return JobStatus(4) }
func (JobStatus) CompletedWithSkipped() JobStatus           { return JobStatus(5) }
func (JobStatus) CompletedWithErrorsAndSkipped() JobStatus  { return JobStatus(6) }
func (JobStatus) Failed() JobStatus                         { return JobStatus(7) }

func (js JobStatus) String() string {
	return enum.StringInt(js, reflect.TypeOf(js))
}

func (js *JobStatus) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(js), s, true, true)
	if err == nil {
		*js = val.(JobStatus)
	}
	return err
}

func (js JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(js.String())
}

func (js *JobStatus) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return js.Parse(s)
}

// EnhanceJobStatus folds per-file outcome flags into a single terminal JobStatus,
// the same decision table the teacher's JobStatus.EnhanceJobStatusInfo uses.
func EnhanceJobStatus(skipped, failed, succeeded bool) JobStatus {
	switch {
	case failed && skipped:
		return EJobStatus.CompletedWithErrorsAndSkipped()
	case failed && succeeded:
		return EJobStatus.CompletedWithErrors()
	case failed:
		return EJobStatus.Failed()
	case skipped:
		return EJobStatus.CompletedWithSkipped()
	default:
		return EJobStatus.Completed()
	}
}

func (js JobStatus) IsDone() bool {
	return js == EJobStatus.Completed() || js == EJobStatus.Cancelled() ||
		js == EJobStatus.CompletedWithSkipped() || js == EJobStatus.CompletedWithErrors() ||
		js == EJobStatus.CompletedWithErrorsAndSkipped() || js == EJobStatus.Failed()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EJobPriority = JobPriority(0)

// JobPriority orders jobs sharing a scheduler. Default is Normal.
type JobPriority uint8

func (JobPriority) Normal() JobPriority { return JobPriority(0) }
func (JobPriority) Low() JobPriority    { return JobPriority(1) }

func (jp JobPriority) String() string {
	return enum.StringInt(uint8(jp), reflect.TypeOf(jp))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ETransferStatus = TransferStatus(0)

// TransferStatus is the JobStatus enum, §4.5 — NotStarted -> Transfer -> Monitor? -> terminal.
// Negative values are reserved for failure variants so a CAS-style "don't downgrade a
// failure" morph can test sign alone, mirroring atomicTransferStatus in the teacher.
type TransferStatus int32

func (TransferStatus) NotStarted() TransferStatus                     { return TransferStatus(0) }
func (TransferStatus) Transfer() TransferStatus                       { return TransferStatus(1) }
func (TransferStatus) Monitor() TransferStatus                        { return TransferStatus(2) }
func (TransferStatus) Finished() TransferStatus                       { return TransferStatus(3) }
func (TransferStatus) Skipped() TransferStatus                        { return TransferStatus(4) }
func (TransferStatus) SkippedDueToShouldNotTransfer() TransferStatus  { return TransferStatus(5) }
func (TransferStatus) Failed() TransferStatus                         { return TransferStatus(-1) }

func (ts TransferStatus) String() string {
	return enum.StringInt(ts, reflect.TypeOf(ts))
}

func (ts TransferStatus) DidFail() bool { return ts < 0 }

func (ts TransferStatus) IsTerminal() bool {
	return ts == ETransferStatus.Finished() || ts == ETransferStatus.Skipped() ||
		ts == ETransferStatus.SkippedDueToShouldNotTransfer() || ts.DidFail()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EEntityType = EntityType(0)

// EntityType distinguishes a file entry from a directory entry without relying on
// ambiguous name suffixes, per the teacher's EEntityType.
type EntityType uint8

func (EntityType) File() EntityType   { return EntityType(0) }
func (EntityType) Folder() EntityType { return EntityType(1) }

func (et EntityType) String() string {
	return enum.StringInt(et, reflect.TypeOf(et))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ELocation = Location(0)

// Location is the discriminator of the TransferLocation tagged union (§3). A tagged
// sum keyed on this byte is used in place of an interface hierarchy so the binary
// journal can store a stable, build-independent discriminator for each location.
type Location uint8

func (Location) Unknown()             Location { return Location(0) }
func (Location) LocalFile()           Location { return Location(1) }
func (Location) LocalDirectory()      Location { return Location(2) }
func (Location) RemoteBlob()          Location { return Location(3) }
func (Location) RemoteBlobDirectory() Location { return Location(4) }
func (Location) InMemoryStream()      Location { return Location(5) }
func (Location) SourceURI()           Location { return Location(6) }

func (l Location) String() string {
	return enum.StringInt(l, reflect.TypeOf(l))
}

func (l Location) IsLocal() bool {
	return l == ELocation.LocalFile() || l == ELocation.LocalDirectory()
}

func (l Location) IsDirectory() bool {
	return l == ELocation.LocalDirectory() || l == ELocation.RemoteBlobDirectory()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ETransferMethod = TransferMethod(0)

// TransferMethod selects how a SingleObjectTransfer moves bytes, §3.
type TransferMethod uint8

func (TransferMethod) SyncCopy() TransferMethod             { return TransferMethod(0) }
func (TransferMethod) ServiceSideAsyncCopy() TransferMethod { return TransferMethod(1) }
func (TransferMethod) ServiceSideSyncCopy() TransferMethod  { return TransferMethod(2) }
func (TransferMethod) DummyCopy() TransferMethod            { return TransferMethod(3) }

func (tm TransferMethod) String() string {
	return enum.StringInt(tm, reflect.TypeOf(tm))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EBlobType = BlobType(0)

// BlobType mirrors the subset of Azure blob types this engine's chunking rules
// (§4.5) depend on: block blobs are committed by block list, page/append blobs
// take direct offset writes.
type BlobType uint8

func (BlobType) Unspecified() BlobType { return BlobType(0) }
func (BlobType) BlockBlob() BlobType   { return BlobType(1) }
func (BlobType) PageBlob() BlobType    { return BlobType(2) }
func (BlobType) AppendBlob() BlobType  { return BlobType(3) }

func (bt BlobType) String() string {
	return enum.StringInt(bt, reflect.TypeOf(bt))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EErrorCode = ErrorCode(0)

// ErrorCode is the transport code carried by every TransferError, §6/§7.
type ErrorCode uint8

func (ErrorCode) Uncategorized() ErrorCode                    { return ErrorCode(0) }
func (ErrorCode) NotOverwriteExistingDestination() ErrorCode  { return ErrorCode(1) }
func (ErrorCode) PathCustomValidationFailed() ErrorCode       { return ErrorCode(2) }
func (ErrorCode) FailedCheckingShouldTransfer() ErrorCode     { return ErrorCode(3) }
func (ErrorCode) FailToEnumerateDirectory() ErrorCode         { return ErrorCode(4) }
func (ErrorCode) FailToValidateDestination() ErrorCode        { return ErrorCode(5) }
func (ErrorCode) TransferStuck() ErrorCode                    { return ErrorCode(6) }
func (ErrorCode) TransferAlreadyExists() ErrorCode            { return ErrorCode(7) }
func (ErrorCode) SourceAndDestinationLocationEqual() ErrorCode { return ErrorCode(8) }
func (ErrorCode) SourceAndDestinationBlobTypeDifferent() ErrorCode {
	return ErrorCode(9)
}
func (ErrorCode) OutOfMemory() ErrorCode { return ErrorCode(10) }

func (ec ErrorCode) String() string {
	return enum.StringInt(ec, reflect.TypeOf(ec))
}
