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

// Package memorypool implements C1: a ceiling-bounded lender of fixed-size buffer
// cells, generalizing the teacher's common.CacheLimiter (a byte counter with a
// strict/relaxed split) into something that actually hands out backing storage.
package memorypool

import (
	"context"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/datamovement/dmcore/common"
)

// Cell is a single 4 MiB lendable buffer. The engine never shrinks or grows a cell;
// chunked I/O reads/writes into Cell.Buf up to Cell.Buf's length.
type Cell struct {
	Buf [common.CellSize]byte
}

var cellPool = sync.Pool{New: func() any { return new(Cell) }}

// Pool bounds the number of cells in flight across the whole engine. Reserve is
// all-or-nothing (§4.1): a caller asking for n cells either gets all n or none.
type Pool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	ceiling   int64 // cells
	reserved  int64 // cells currently lent out
}

// New builds a Pool whose ceiling is maximumCacheSize bytes, or — when
// maximumCacheSize is zero — min(MemoryCacheMultiplier * available physical memory,
// MemoryCacheMaximum), capped absolutely at MemoryManagerCellsMaximum cells, per §4.1.
func New(maximumCacheSize int64) *Pool {
	ceilingBytes := maximumCacheSize
	if ceilingBytes <= 0 {
		ceilingBytes = computeDefaultCeiling()
	}
	ceilingCells := ceilingBytes / common.CellSize
	if ceilingCells <= 0 {
		ceilingCells = 1
	}
	if ceilingCells > common.MemoryManagerCellsMaximum {
		ceilingCells = common.MemoryManagerCellsMaximum
	}
	p := &Pool{ceiling: ceilingCells}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func computeDefaultCeiling() int64 {
	maxForPlatform := int64(common.MemoryCacheMaximum64Bit)
	if isPlatform32Bit() {
		maxForPlatform = int64(common.MemoryCacheMaximum32Bit)
	}

	available := maxForPlatform // conservative fallback if the host can't be probed
	if vm, err := mem.VirtualMemory(); err == nil {
		available = int64(float64(vm.Available) * common.MemoryCacheMultiplier)
	}
	if available > maxForPlatform {
		return maxForPlatform
	}
	return available
}

func isPlatform32Bit() bool {
	return ^uint(0)>>32 == 0
}

// Ceiling returns the pool's cell ceiling, for diagnostics and tests.
func (p *Pool) Ceiling() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ceiling
}

// InUse returns the number of cells currently lent out, the invariant Testable
// Property 6 exercises: the sum across all in-flight jobs must never exceed Ceiling.
func (p *Pool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved
}

// Reserve blocks until n cells are available and then lends them, honoring ctx
// cancellation as a suspension point (§5). It fails immediately with OutOfMemory
// only when n alone exceeds the ceiling — a request that could never succeed no
// matter how long it waited.
func (p *Pool) Reserve(ctx context.Context, n int) ([]*Cell, error) {
	if n <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	if int64(n) > p.ceiling {
		p.mu.Unlock()
		return nil, common.NewTransferError(common.EErrorCode.OutOfMemory(),
			errors.Errorf("requested %d cells (%s) exceeds pool ceiling of %d cells (%s)",
				n, humanize.Bytes(uint64(n)*common.CellSize), p.ceiling, humanize.Bytes(uint64(p.ceiling)*common.CellSize)))
	}

	// Wake waiters on ctx cancellation; sync.Cond has no native context support.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.cond.Broadcast()
		case <-done:
		}
	}()

	for p.reserved+int64(n) > p.ceiling {
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.cond.Wait()
	}
	p.reserved += int64(n)
	p.mu.Unlock()

	cells := make([]*Cell, n)
	for i := range cells {
		cells[i] = cellPool.Get().(*Cell)
	}
	return cells, nil
}

// Release returns cells to the pool. Disposal of a transfer must release every cell
// it owns — a leaked cell is a fatal bug per §4.1 — so callers should defer Release
// immediately after a successful Reserve.
func (p *Pool) Release(cells []*Cell) {
	if len(cells) == 0 {
		return
	}
	for _, c := range cells {
		cellPool.Put(c)
	}
	p.mu.Lock()
	p.reserved -= int64(len(cells))
	p.mu.Unlock()
	p.cond.Broadcast()
}
