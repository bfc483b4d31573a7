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

package checkpoint_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
)

func TestCollectionAddRejectsDuplicateKey(t *testing.T) {
	c := checkpoint.NewCollection()
	key := common.NewTransferKey("/tmp/a", "https://x/a")

	_, err := c.Add(key, checkpoint.TransferRecord{})
	require.NoError(t, err)

	_, err = c.Add(key, checkpoint.TransferRecord{})
	require.Error(t, err)
	require.Equal(t, common.EErrorCode.TransferAlreadyExists(), common.CodeOf(err))
}

func TestCollectionGetOrCreateReturnsExistingOnResume(t *testing.T) {
	c := checkpoint.NewCollection()
	key := common.NewTransferKey("/tmp/a", "https://x/a")
	calls := 0
	factory := func() checkpoint.TransferRecord {
		calls++
		return checkpoint.TransferRecord{RelativePath: "a"}
	}

	e1, created1, err := c.GetOrCreate(key, factory)
	require.NoError(t, err)
	require.True(t, created1)

	e2, created2, err := c.GetOrCreate(key, factory)
	require.NoError(t, err)
	require.False(t, created2)
	require.Same(t, e1, e2)
	require.Equal(t, 1, calls)
}

func TestCollectionRemoveThenAddAgainSucceeds(t *testing.T) {
	c := checkpoint.NewCollection()
	key := common.NewTransferKey("/tmp/a", "https://x/a")

	_, err := c.Add(key, checkpoint.TransferRecord{})
	require.NoError(t, err)
	c.Remove(key)

	_, err = c.Add(key, checkpoint.TransferRecord{})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestCollectionAggregatesChildProgress(t *testing.T) {
	c := checkpoint.NewCollection()
	e1, err := c.Add(common.NewTransferKey("a", "b"), checkpoint.TransferRecord{})
	require.NoError(t, err)
	e2, err := c.Add(common.NewTransferKey("c", "d"), checkpoint.TransferRecord{})
	require.NoError(t, err)

	e1.Progress.AddBytes(10)
	e1.Progress.AddFilesTransferred(1)
	e2.Progress.AddBytes(5)

	snap := c.Progress.Snapshot()
	require.EqualValues(t, 15, snap.BytesTransferred)
	require.EqualValues(t, 1, snap.FilesTransferred)
}

func TestCollectionConcurrentGetOrCreateIsSafe(t *testing.T) {
	c := checkpoint.NewCollection()
	var wg sync.WaitGroup
	successes := make([]bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := c.GetOrCreate(common.NewTransferKey("same", "key"), func() checkpoint.TransferRecord {
				return checkpoint.TransferRecord{}
			})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()
	for _, ok := range successes {
		require.True(t, ok)
	}
	require.Equal(t, 1, c.Len())
}
