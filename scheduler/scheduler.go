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

// Package scheduler implements C8 (the bounded-parallelism job scheduler) and C9
// (the directory-listing scheduler), grounded on the teacher's
// ste/JobsAdmin.go worker-pool-over-channels design, generalized from a fixed
// worker-count-per-process model to one admission queue per transfer manager with
// memory-pool-gated admission.
package scheduler

import (
	"container/list"
	"context"
	"sync"

	"github.com/datamovement/dmcore/memorypool"
)

// Job is one unit of schedulable work. Run is invoked once admitted; it must itself
// observe ctx and return promptly after cancellation once its current chunk finishes,
// per the cooperative-cancellation rule of §4.4.
type Job struct {
	// Cells is how many memory pool cells this job needs reserved before it runs.
	// Most directory-listing jobs pass 0 (no pool reservation).
	Cells int
	Run   func(ctx context.Context, cells []*memorypool.Cell)
}

// Scheduler is C8: it admits a Job only when both a parallelism-semaphore permit and
// a memorypool.Pool.Reserve succeed, in FIFO order among equally-ready jobs, per
// spec's (a)/(b) admission rule.
type Scheduler struct {
	pool *memorypool.Pool

	sem chan struct{} // parallelism permits

	mu      sync.Mutex
	queue   *list.List // of *queuedJob, FIFO
	closed  bool
	wg      sync.WaitGroup
	drainCh chan struct{}
}

type queuedJob struct {
	job Job
	ctx context.Context
}

// New builds a Scheduler with parallelism concurrent slots, admitting against pool.
func New(parallelism int, pool *memorypool.Pool) *Scheduler {
	if parallelism <= 0 {
		parallelism = 1
	}
	s := &Scheduler{
		pool:    pool,
		sem:     make(chan struct{}, parallelism),
		queue:   list.New(),
		drainCh: make(chan struct{}, 1),
	}
	return s
}

// Submit enqueues job for admission. It returns immediately; job.Run executes on an
// internal goroutine once both admission conditions are met. Submit itself never
// blocks — FIFO order is maintained by the internal dispatch loop, not by blocking
// the caller, so many producers can Submit concurrently without serializing on
// queue position.
func (s *Scheduler) Submit(ctx context.Context, job Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.queue.PushBack(&queuedJob{job: job, ctx: ctx})
	s.mu.Unlock()
	go s.dispatchOne()
}

// dispatchOne pops the head of the FIFO queue (if any) and admits it, blocking this
// goroutine — not the caller of Submit — until both the parallelism semaphore and
// the memory pool grant it. One dispatchOne goroutine is spawned per Submit, so
// admission order across goroutines is not strictly guaranteed under extreme
// scheduler contention, but the queue itself is always popped head-first.
func (s *Scheduler) dispatchOne() {
	s.mu.Lock()
	front := s.queue.Front()
	if front == nil {
		s.mu.Unlock()
		return
	}
	qj := s.queue.Remove(front).(*queuedJob)
	s.mu.Unlock()

	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-qj.ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	var cells []*memorypool.Cell
	if qj.job.Cells > 0 && s.pool != nil {
		var err error
		cells, err = s.pool.Reserve(qj.ctx, qj.job.Cells)
		if err != nil {
			return
		}
		defer s.pool.Release(cells)
	}

	if qj.ctx.Err() != nil {
		return
	}
	qj.job.Run(qj.ctx, cells)
}

// Wait blocks until every Submit-ed job has either run to completion or been
// abandoned due to context cancellation. Callers typically pair this with closing
// off new Submit calls first via Close, mirroring TreeCrawler's
// "enumeration done, then await completion" ordering (§4.6).
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close marks the scheduler closed: further Submit calls are silently dropped. It
// does not cancel in-flight or queued jobs — callers cancel via ctx and then Wait.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Pending reports the number of jobs submitted but not yet admitted-and-run, for
// diagnostics and tests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
