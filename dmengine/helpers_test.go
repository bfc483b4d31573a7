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

package dmengine_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/testutil"
)

// writeTestTree lays out a.txt at the root, sub/b.txt one level down, and
// sub/subsub/c.txt two levels down, under dir.
func writeTestTree(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "subsub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("B"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "subsub", "c.txt"), []byte("C"), 0o644))
}

// advanceCopyUntilDone repeatedly nudges a server-side copy's FakeBlobClient state
// toward completion until resultCh fires or the test times out, the same pattern
// transfer's own Monitor tests use to drive CopyStatusPending to CopyStatusSuccess
// deterministically instead of on a wall-clock timer.
func advanceCopyUntilDone(t *testing.T, resultCh <-chan error, fc *testutil.FakeBlobClient, destURI string, totalBytes int64) {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case err := <-resultCh:
			require.NoError(t, err)
			return
		case <-ticker.C:
			fc.AdvanceCopy(destURI, totalBytes)
		case <-timeout:
			t.Fatal("timed out waiting for server-side copy to complete")
		}
	}
}

// advanceCopiesUntilDone is advanceCopyUntilDone generalized to every destination
// URI a directory-level server-side copy touches at once.
func advanceCopiesUntilDone(t *testing.T, resultCh <-chan error, fc *testutil.FakeBlobClient, destURIs []string, totalBytes int64) {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case err := <-resultCh:
			require.NoError(t, err)
			return
		case <-ticker.C:
			for _, uri := range destURIs {
				fc.AdvanceCopy(uri, totalBytes)
			}
		case <-timeout:
			t.Fatal("timed out waiting for server-side directory copy to complete")
		}
	}
}
