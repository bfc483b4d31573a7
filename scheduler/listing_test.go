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

package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/scheduler"
)

func TestListingSchedulerRunsAllTasks(t *testing.T) {
	ls := scheduler.NewListingScheduler(context.Background(), 4)
	var ran int32
	for i := 0; i < 12; i++ {
		ls.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	require.NoError(t, ls.Wait())
	require.EqualValues(t, 12, ran)
}

func TestListingSchedulerNeverExceedsConcurrencyLimit(t *testing.T) {
	const limit = 2
	ls := scheduler.NewListingScheduler(context.Background(), limit)
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		ls.Submit(func(ctx context.Context) error {
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > maxInFlight {
				maxInFlight = n
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil
		})
	}
	require.NoError(t, ls.Wait())
	require.LessOrEqual(t, int(maxInFlight), limit)
}

func TestListingSchedulerPropagatesFirstErrorAndCancelsSiblings(t *testing.T) {
	ls := scheduler.NewListingScheduler(context.Background(), 4)
	boom := errors.New("enumeration failed")

	ls.Submit(func(ctx context.Context) error {
		return boom
	})

	var sawCancellation int32
	var wg sync.WaitGroup
	wg.Add(1)
	ls.Submit(func(ctx context.Context) error {
		defer wg.Done()
		select {
		case <-ctx.Done():
			atomic.AddInt32(&sawCancellation, 1)
		case <-time.After(time.Second):
		}
		return nil
	})

	err := ls.Wait()
	require.ErrorIs(t, err, boom)
	wg.Wait()
	require.EqualValues(t, 1, sawCancellation)
}
