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

package transfer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/datamovement/dmcore/blobclient"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/continuation"
	"github.com/datamovement/dmcore/enumerate"
	"github.com/datamovement/dmcore/memorypool"
	"github.com/datamovement/dmcore/progress"
	"github.com/datamovement/dmcore/scheduler"
)

// BuildTransferFunc constructs the single-object transfer for one enumerated file,
// given its relative and resolved paths. Callers close over Client/Pool/credentials.
type BuildTransferFunc func(entry enumerate.Entry, destPath string) *SingleObjectTransfer

// FlatDirectoryTransfer wraps every file an Enumerator yields as a
// SingleObjectTransfer and submits it to the scheduler, §4.6's flat mode. Completion
// is enumerator-exhaustion AND all-submitted-transfers-done, grounded on the
// non-sync branch of common/parallel/TreeCrawler.go's runWorkersToCompletion.
type FlatDirectoryTransfer struct {
	Enumerator     enumerate.Enumerator
	BuildTransfer  BuildTransferFunc
	SourceIsLocal  bool
	DestIsLocal    bool
	Delimiter      string
	Scheduler      *scheduler.Scheduler
	MaxConcurrency int

	mu       sync.Mutex
	firstErr error
	wg       sync.WaitGroup
}

// Run enumerates to exhaustion, submitting one scheduler Job per file, and returns
// the first fatal error encountered by any submitted transfer (if any).
func (f *FlatDirectoryTransfer) Run(ctx context.Context) error {
	sem := make(chan struct{}, f.MaxConcurrency)
	for {
		if err := ctx.Err(); err != nil {
			f.recordError(err)
			break
		}
		entry, ok, err := f.Enumerator.Next(ctx)
		if err != nil {
			f.recordError(common.WrapTransferError(common.EErrorCode.FailToEnumerateDirectory(), err, "enumerate"))
			break
		}
		if !ok {
			break
		}
		if entry.Kind == enumerate.EntryError {
			f.recordError(entry.Err)
			continue
		}
		if entry.Kind != enumerate.EntryFile {
			continue
		}

		destPath := ResolveDestinationPath(entry.RelPath, f.SourceIsLocal, f.DestIsLocal, f.Delimiter)
		sot := f.BuildTransfer(entry, destPath)

		f.wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			f.wg.Done()
			f.recordError(ctx.Err())
			continue
		}
		f.Scheduler.Submit(ctx, scheduler.Job{
			Run: func(jobCtx context.Context, _ []*memorypool.Cell) {
				defer f.wg.Done()
				defer func() { <-sem }()
				if err := sot.Execute(jobCtx); err != nil {
					f.recordError(err)
				}
			},
		})
	}
	f.wg.Wait()
	return f.firstErr
}

func (f *FlatDirectoryTransfer) recordError(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.firstErr == nil {
		f.firstErr = err
	}
	f.mu.Unlock()
}

// subDirJob is one pending level of enumeration, keyed by its relative path and an
// optional resume token for that level.
type subDirJob struct {
	relPath string
	token   continuation.Token
}

// SubDirSeed is one sub-directory level recovered from a journal at resume time
// (checkpoint.Journal.ReadNextSubDirRelpath plus its decoded continuation.Token), or
// the single zero-value root level for a fresh run.
type SubDirSeed struct {
	RelPath string
	Token   continuation.Token
}

// NewSubLevelEnumerator builds the single-level (non-recursive) Enumerator a
// HierarchicalDirectoryTransfer needs for one subDirJob: the same LocalEnumerator /
// BlobEnumerator constructors used for flat traversal, but rooted at the
// sub-directory and with Recursive forced false so it yields exactly one directory
// level per call, the pull-based analogue of TreeCrawler's EnumerateOneDirFunc.
type NewSubLevelEnumerator func(ctx context.Context, relPath string, token continuation.Token) (enumerate.Enumerator, error)

// HierarchicalDirectoryTransfer implements §4.6's producer/consumer mode: a
// sync.Cond-guarded pending queue of sub-directory relative paths and an
// outstandingListTasks counter, grounded directly on
// common/parallel/TreeCrawler.go's crawler (unstartedDirs + dirInProgressCount), but
// re-expressed as "submit a listing task per sub-directory to the directory-listing
// scheduler (C9), submit each discovered file to the main scheduler (C8)" instead of
// a dedicated worker-goroutine pool.
type HierarchicalDirectoryTransfer struct {
	NewLevelEnumerator NewSubLevelEnumerator
	BuildTransfer      BuildTransferFunc
	SourceIsLocal      bool
	DestIsLocal        bool
	Delimiter          string

	Scheduler              *scheduler.Scheduler
	Listing                *scheduler.ListingScheduler
	MaxTransferConcurrency int

	// OnSubDirProgress is invoked after each level is fully enumerated, so a caller
	// can persist the level's continuation token and relative path to the journal
	// (§4.7's "each callback updates the list-continuation token and persists the
	// parent's progress"). May be nil.
	OnSubDirProgress func(relPath string, token continuation.Token)

	// OnSubDirDiscovered is invoked as each sub-directory is queued for its own
	// level, before it is added to the pending queue — a caller journals it here so
	// a crash before OnSubDirProgress fires for that level still leaves it seeded
	// on the next Run. May be nil.
	OnSubDirDiscovered func(relPath string)

	Progress *progress.Tracker

	mu                    sync.Mutex
	cond                  *sync.Cond
	pending               []subDirJob
	outstandingListTasks  int
	firstErr              error
	fileSem               chan struct{}
	fileWG                sync.WaitGroup
}

// NewHierarchicalDirectoryTransfer wires the pending-queue condition variable and
// the file-admission semaphore, sized MaxTransferConcurrency+1 per §4.6 (the "+1"
// covers the listing task itself).
func NewHierarchicalDirectoryTransfer(h HierarchicalDirectoryTransfer) *HierarchicalDirectoryTransfer {
	t := h
	t.cond = sync.NewCond(&t.mu)
	limit := t.MaxTransferConcurrency + 1
	if limit <= 0 {
		limit = 1
	}
	t.fileSem = make(chan struct{}, limit)
	return &t
}

// Run drives enumeration and transfer to completion, resuming from seed (the
// pending sub-directories recovered from a journal; pass a single root job with a
// zero token for a fresh run).
func (h *HierarchicalDirectoryTransfer) Run(ctx context.Context, seed []SubDirSeed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	if len(seed) == 0 {
		seed = []SubDirSeed{{RelPath: ""}}
	}
	for _, s := range seed {
		h.outstandingListTasks++
		h.pending = append(h.pending, subDirJob{relPath: s.RelPath, token: s.Token})
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.dispatch(ctx, cancel, done)
	go func() {
		// Wake a dispatch loop blocked in cond.Wait() on cancellation; cond.Wait()
		// only wakes on Broadcast/Signal, never on ctx.Done() by itself.
		<-ctx.Done()
		h.cond.Broadcast()
	}()
	<-done

	if err := h.Listing.Wait(); err != nil {
		h.recordError(err, cancel)
	}
	h.fileWG.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firstErr
}

// dispatch pops pending levels and hands each to the listing scheduler, exiting
// once outstandingListTasks returns to zero — the "enumeration is done" signal of
// §4.6.
func (h *HierarchicalDirectoryTransfer) dispatch(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	for {
		h.mu.Lock()
		for len(h.pending) == 0 && h.outstandingListTasks > 0 && ctx.Err() == nil {
			h.cond.Wait()
		}
		if h.outstandingListTasks == 0 || ctx.Err() != nil {
			h.mu.Unlock()
			return
		}
		job := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()

		h.Listing.Submit(func(listCtx context.Context) error {
			err := h.processLevel(listCtx, cancel, job)
			h.mu.Lock()
			h.outstandingListTasks--
			h.cond.Broadcast()
			h.mu.Unlock()
			return err
		})
	}
}

// processLevel enumerates exactly one directory level, appending each discovered
// sub-directory to the pending queue and submitting each file to the main
// scheduler, §4.6's sub-directory transfer callback.
func (h *HierarchicalDirectoryTransfer) processLevel(ctx context.Context, cancel context.CancelFunc, job subDirJob) error {
	en, err := h.NewLevelEnumerator(ctx, job.relPath, job.token)
	if err != nil {
		h.recordError(common.WrapTransferError(common.EErrorCode.FailToEnumerateDirectory(), err, "open sub-level"), cancel)
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok, err := en.Next(ctx)
		if err != nil {
			wrapped := common.WrapTransferError(common.EErrorCode.FailToEnumerateDirectory(), err, "enumerate level")
			h.recordError(wrapped, cancel)
			return wrapped
		}
		if !ok {
			break
		}
		entry.RelPath = joinRelPath(job.relPath, entry.RelPath)

		switch entry.Kind {
		case enumerate.EntryError:
			h.recordError(entry.Err, cancel)
		case enumerate.EntryDirectory:
			if h.OnSubDirDiscovered != nil {
				h.OnSubDirDiscovered(entry.RelPath)
			}
			h.mu.Lock()
			h.outstandingListTasks++
			h.pending = append(h.pending, subDirJob{relPath: entry.RelPath})
			h.cond.Broadcast()
			h.mu.Unlock()
		case enumerate.EntryFile:
			h.submitFile(ctx, cancel, entry)
		}
	}

	if h.OnSubDirProgress != nil {
		h.OnSubDirProgress(job.relPath, en.ContinuationToken())
	}
	return nil
}

func (h *HierarchicalDirectoryTransfer) submitFile(ctx context.Context, cancel context.CancelFunc, entry enumerate.Entry) {
	destPath := ResolveDestinationPath(entry.RelPath, h.SourceIsLocal, h.DestIsLocal, h.Delimiter)
	sot := h.BuildTransfer(entry, destPath)

	h.fileWG.Add(1)
	select {
	case h.fileSem <- struct{}{}:
	case <-ctx.Done():
		h.fileWG.Done()
		return
	}
	h.Scheduler.Submit(ctx, scheduler.Job{
		Run: func(jobCtx context.Context, _ []*memorypool.Cell) {
			defer h.fileWG.Done()
			defer func() { <-h.fileSem }()
			if err := sot.Execute(jobCtx); err != nil {
				h.recordError(err, nil)
				if common.IsFatalToSiblings(err) {
					cancel()
				}
			}
		},
	})
}

// recordError keeps the first error and, when cancel is non-nil and this is the
// first error, cancels ctx so in-flight listing and transfer tasks unwind promptly
// instead of running to their own unrelated completion. Enumeration-error callers
// pass cancel; submitFile passes nil and cancels on its own only for the errors that
// must cancel sibling work (§4.6: TransferStuck, FailedCheckingShouldTransfer).
func (h *HierarchicalDirectoryTransfer) recordError(err error, cancel context.CancelFunc) {
	if err == nil {
		return
	}
	h.mu.Lock()
	first := h.firstErr == nil
	if first {
		h.firstErr = err
	}
	h.mu.Unlock()
	if first && cancel != nil {
		cancel()
	}
}

// joinRelPath joins a sub-level's own root-relative path with an entry's path
// relative to that sub-level, since enumerate.Enumerator implementations compute
// RelPath relative to whatever root they were constructed against, not the overall
// directory transfer's root.
func joinRelPath(base, rel string) string {
	if base == "" {
		return rel
	}
	if rel == "" {
		return base
	}
	return base + "/" + rel
}

// LocalSubLevelEnumerator adapts NewLocalEnumerator into a NewSubLevelEnumerator,
// grounded on enumerate.LocalEnumerator's "recursive=false yields exactly the
// entries of the given root" behavior.
func LocalSubLevelEnumerator(root, searchPattern string, followSymlink bool) NewSubLevelEnumerator {
	return func(_ context.Context, relPath string, token continuation.Token) (enumerate.Enumerator, error) {
		full := root
		if relPath != "" {
			full = filepath.Join(root, filepath.FromSlash(relPath))
		}
		return enumerate.NewLocalEnumerator(full, searchPattern, false, followSymlink, token)
	}
}

// BlobSubLevelEnumerator adapts NewBlobEnumerator into a NewSubLevelEnumerator for
// one virtual directory level, using "/" as the folding delimiter for virtual
// prefixes, per enumerate.BlobEnumerator.
func BlobSubLevelEnumerator(client blobclient.BlobClient, containerURI, rootPrefix, searchPattern string) NewSubLevelEnumerator {
	return func(_ context.Context, relPath string, token continuation.Token) (enumerate.Enumerator, error) {
		prefix := rootPrefix
		if relPath != "" {
			prefix = strings.TrimSuffix(rootPrefix, "/") + "/" + relPath + "/"
		}
		return enumerate.NewBlobEnumerator(client, containerURI, prefix, "/", searchPattern, false, token), nil
	}
}
