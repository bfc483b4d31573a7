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

package checkpoint

import (
	"sync"

	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/progress"
)

// Entry is one member of a Collection: a transfer's durable record plus the live
// progress.Tracker the engine mutates while the transfer runs. Progress is parented
// to the Collection's aggregate tracker so per-member deltas roll up automatically,
// per §3's ProgressTracker aggregation invariant.
type Entry struct {
	Key      common.TransferKey
	Record   TransferRecord
	Progress *progress.Tracker
}

// Collection is C10: a concurrent map of active transfers keyed by (source, dest),
// grounded on the teacher's JobsInfoMap_New (an RWMutex-guarded map of JobID to
// JobInfo) — generalized from a one-level job map to transfer identity keys, and
// widened to also own the aggregate ProgressTracker every member rolls up into.
type Collection struct {
	mu       sync.RWMutex
	entries  map[common.TransferKey]*Entry
	Progress *progress.Tracker
}

// NewCollection returns an empty collection with its own aggregate tracker.
func NewCollection() *Collection {
	return &Collection{
		entries:  make(map[common.TransferKey]*Entry),
		Progress: progress.New(),
	}
}

// Add registers a new transfer under key, failing with TransferAlreadyExists if one
// is already active — Testable Property 4 ("at most one transfer per (source,
// dest) pair") and the manager-level contract of §4.8.
func (c *Collection) Add(key common.TransferKey, rec TransferRecord) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return nil, common.NewTransferError(common.EErrorCode.TransferAlreadyExists(), nil)
	}
	e := &Entry{Key: key, Record: rec, Progress: c.Progress.NewChild()}
	c.entries[key] = e
	return e, nil
}

// GetOrCreate returns the existing entry for key, or creates one from create() when
// absent — the resume path of §4.8 ("getTransfer ... returning the existing
// transfer when resuming; else a fresh one").
func (c *Collection) GetOrCreate(key common.TransferKey, create func() TransferRecord) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, exists := c.entries[key]; exists {
		return e, false, nil
	}
	e := &Entry{Key: key, Record: create(), Progress: c.Progress.NewChild()}
	c.entries[key] = e
	return e, true, nil
}

// Get looks up an active transfer by key without creating one.
func (c *Collection) Get(key common.TransferKey) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Remove drops key from the collection, called unconditionally on transfer
// completion regardless of outcome, per §4.8.
func (c *Collection) Remove(key common.TransferKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of active transfers.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Range calls fn for every active entry, stopping early if fn returns false. fn
// observes a consistent per-call snapshot but, as with the journal's per-item
// locking (§4.7), iteration as a whole is not a consistent point-in-time view under
// concurrent Add/Remove.
func (c *Collection) Range(fn func(*Entry) bool) {
	c.mu.RLock()
	snapshot := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, e)
	}
	c.mu.RUnlock()
	for _, e := range snapshot {
		if !fn(e) {
			return
		}
	}
}
