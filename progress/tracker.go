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

// Package progress implements C2: lock-free counters with hierarchical aggregation
// and a rate-limited, at-most-one-in-flight report callback, generalizing the
// teacher's common.CountPerSecond into the four-counter ProgressTracker of §3.
package progress

import (
	"sync/atomic"
)

// Handler is the user-visible, debounced progress callback (§6's progressHandler).
type Handler func(snapshot Snapshot)

// Snapshot is an immutable point-in-time read of a Tracker's counters.
type Snapshot struct {
	BytesTransferred int64
	FilesTransferred int64
	FilesSkipped     int64
	FilesFailed      int64
}

// Tracker holds the four atomic counters of §3's ProgressTracker, plus a parent
// pointer walked on every Add so that a non-zero delta applied to a child is also
// applied to every ancestor exactly once (the tree-wide invariant of §3).
type Tracker struct {
	bytesTransferred int64
	filesTransferred int64
	filesSkipped     int64
	filesFailed      int64

	parent    *Tracker
	handler   Handler
	reporting int32 // CAS-guarded in-flight flag, §4.2
	pending   int32 // set when an update arrives mid-report; triggers one trailing report
}

// New creates a root tracker with no parent and no handler.
func New() *Tracker {
	return &Tracker{}
}

// NewChild creates a tracker whose deltas also propagate to parent, implementing the
// hierarchical aggregation TransferCollection relies on to roll sub-transfer
// progress up into a directory transfer's totals.
func (t *Tracker) NewChild() *Tracker {
	return &Tracker{parent: t}
}

// SetHandler installs the user's ProgressHandler. Only the root of a tree normally
// needs one; children report through their parent.
func (t *Tracker) SetHandler(h Handler) { t.handler = h }

func (t *Tracker) AddBytes(n int64) { t.add(&t.bytesTransferred, n) }

func (t *Tracker) AddFilesTransferred(n int64) { t.add(&t.filesTransferred, n) }

func (t *Tracker) AddFilesSkipped(n int64) { t.add(&t.filesSkipped, n) }

func (t *Tracker) AddFilesFailed(n int64) { t.add(&t.filesFailed, n) }

func (t *Tracker) add(counter *int64, n int64) {
	if n == 0 {
		return
	}
	atomic.AddInt64(counter, n)
	if t.parent != nil {
		t.parent.add(parentCounterFor(t, counter), n)
	}
	t.triggerReport()
}

// parentCounterFor maps a child's counter pointer to the matching counter on parent,
// so the same add() implementation can walk an arbitrarily deep tracker tree.
func parentCounterFor(t *Tracker, counter *int64) *int64 {
	switch counter {
	case &t.bytesTransferred:
		return &t.parent.bytesTransferred
	case &t.filesTransferred:
		return &t.parent.filesTransferred
	case &t.filesSkipped:
		return &t.parent.filesSkipped
	case &t.filesFailed:
		return &t.parent.filesFailed
	default:
		panic("progress: counter pointer does not belong to this tracker")
	}
}

// Snapshot reads all four counters as of now. Safe to call concurrently with Add*.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		BytesTransferred: atomic.LoadInt64(&t.bytesTransferred),
		FilesTransferred: atomic.LoadInt64(&t.filesTransferred),
		FilesSkipped:     atomic.LoadInt64(&t.filesSkipped),
		FilesFailed:      atomic.LoadInt64(&t.filesFailed),
	}
}

// triggerReport implements the at-most-one-in-flight reporter rule of §4.2: a CAS
// claims the "reporting" slot; concurrent updates observed during a report set
// "pending" and cause exactly one additional report once the current one returns.
func (t *Tracker) triggerReport() {
	if t.handler == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&t.reporting, 0, 1) {
		atomic.StoreInt32(&t.pending, 1)
		return
	}
	for {
		t.handler(t.Snapshot())
		atomic.StoreInt32(&t.reporting, 0)
		if !atomic.CompareAndSwapInt32(&t.pending, 1, 0) {
			return
		}
		if !atomic.CompareAndSwapInt32(&t.reporting, 0, 1) {
			return
		}
	}
}
