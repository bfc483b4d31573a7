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
	"fmt"

	"github.com/pkg/errors"
)

// TransferError is the sum type every engine-raised error resolves to, §7. The
// underlying cause keeps its pkg/errors stack so a log line captures both "what
// kind of failure" (Code) and "where it actually happened" (%+v on Cause).
type TransferError struct {
	Code  ErrorCode
	Cause error
}

func NewTransferError(code ErrorCode, cause error) *TransferError {
	return &TransferError{Code: code, Cause: errors.WithStack(cause)}
}

func WrapTransferError(code ErrorCode, cause error, msg string) *TransferError {
	return &TransferError{Code: code, Cause: errors.Wrap(cause, msg)}
}

func (e *TransferError) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Cause.Error())
}

func (e *TransferError) Unwrap() error { return e.Cause }

// CodeOf extracts the ErrorCode carried by err, defaulting to Uncategorized when err
// is nil or isn't (or doesn't wrap) a *TransferError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return EErrorCode.Uncategorized()
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Code
	}
	return EErrorCode.Uncategorized()
}

// IsSkip reports whether err should be treated as a Skipped terminal transition
// rather than a Failed one, per §4.5's classification of NotOverwriteExistingDestination
// and PathCustomValidationFailed as control flow, not failure.
func IsSkip(err error) bool {
	code := CodeOf(err)
	return code == EErrorCode.NotOverwriteExistingDestination() || code == EErrorCode.PathCustomValidationFailed()
}

// IsFatalToSiblings reports whether err must cancel sibling work in a directory
// transfer rather than simply fail the one file that raised it, per §4.6.
func IsFatalToSiblings(err error) bool {
	code := CodeOf(err)
	return code == EErrorCode.TransferStuck() || code == EErrorCode.FailedCheckingShouldTransfer()
}
