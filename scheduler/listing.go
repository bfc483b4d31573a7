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

package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ListingScheduler is C9: a distinct, smaller bounded pool dedicated to enumeration
// tasks (directory listings, sub-directory crawls) so listing latency and data
// transfer throughput never starve each other, per §4.4. Unlike Scheduler, it is
// errgroup-bounded rather than memory-pool-gated — listing tasks never hold a
// memorypool.Cell — and the first task error cancels the group's derived context,
// which every enumerator's Next already observes as a suspension point (§5).
type ListingScheduler struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewListingScheduler builds a ListingScheduler bounded to concurrency workers,
// deriving a cancellable context from parent. Config.ListingConcurrencyFor applies the
// "6, or 4 when either endpoint is local" rule; callers pass its result in directly
// so this package stays free of Config.
func NewListingScheduler(parent context.Context, concurrency int) *ListingScheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(parent)
	g.SetLimit(concurrency)
	return &ListingScheduler{group: g, ctx: ctx}
}

// Context returns the scheduler's derived context, cancelled the moment any
// submitted task returns a non-nil error — callers thread this into every
// subsequently submitted enumeration task so a sibling failure stops the others
// promptly instead of letting them run to their own, separate completion.
func (s *ListingScheduler) Context() context.Context {
	return s.ctx
}

// Submit enqueues fn, blocking only until a concurrency slot is free (errgroup's
// SetLimit semantics) — not until fn itself completes.
func (s *ListingScheduler) Submit(fn func(ctx context.Context) error) {
	s.group.Go(func() error { return fn(s.ctx) })
}

// Wait blocks until every submitted task has returned, yielding the first non-nil
// error encountered (if any) — the producer/consumer loop's "await completion, then
// signal success or the first exception" rule of §4.6.
func (s *ListingScheduler) Wait() error {
	return s.group.Wait()
}
