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

package enumerate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/continuation"
	"github.com/datamovement/dmcore/enumerate"
)

func drainLocal(t *testing.T, en *enumerate.LocalEnumerator) []enumerate.Entry {
	t.Helper()
	var entries []enumerate.Entry
	for {
		entry, ok, err := en.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return entries
		}
		entries = append(entries, entry)
	}
}

func relPaths(entries []enumerate.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelPath
	}
	return out
}

// TestLocalEnumeratorRecursiveVisitsEveryFileAcrossSiblingDirectories guards against a
// depth-first walk that defers subdirectories onto a stack and pops the most recently
// discovered one first: with two sibling directories, that pops them in descending
// order and, combined with the resume skip-guard, can drop the first one's contents
// entirely on a completely fresh walk.
func TestLocalEnumeratorRecursiveVisitsEveryFileAcrossSiblingDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirA"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirZ"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirA", "x.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirZ", "y.txt"), []byte("y"), 0o644))

	en, err := enumerate.NewLocalEnumerator(root, "", true, false, continuation.Token{})
	require.NoError(t, err)

	entries := drainLocal(t, en)
	var files []string
	for _, e := range entries {
		if e.Kind == enumerate.EntryFile {
			files = append(files, e.RelPath)
		}
	}
	require.ElementsMatch(t, []string{"dirA/x.txt", "dirZ/y.txt"}, files)
}

// TestLocalEnumeratorRecursiveIsPreOrder confirms each directory is fully descended
// into immediately after being yielded, before its siblings are visited — the same
// order filepath.WalkDir produces.
func TestLocalEnumeratorRecursiveIsPreOrder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirA"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirB"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirA", "x.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirB", "y.txt"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "root.txt"), []byte("r"), 0o644))

	en, err := enumerate.NewLocalEnumerator(root, "", true, false, continuation.Token{})
	require.NoError(t, err)

	entries := drainLocal(t, en)
	require.Equal(t, []string{"dirA", "dirA/x.txt", "dirB", "dirB/y.txt", "root.txt"}, relPaths(entries))
}

func TestLocalEnumeratorNonRecursiveStaysAtTopLevel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "hidden.txt"), []byte("h"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("t"), 0o644))

	en, err := enumerate.NewLocalEnumerator(root, "", false, false, continuation.Token{})
	require.NoError(t, err)

	entries := drainLocal(t, en)
	require.Equal(t, []string{"sub", "top.txt"}, relPaths(entries))
}

func TestLocalEnumeratorSearchPatternFiltersFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.log"), []byte("b"), 0o644))

	en, err := enumerate.NewLocalEnumerator(root, "*.txt", false, false, continuation.Token{})
	require.NoError(t, err)

	entries := drainLocal(t, en)
	require.Equal(t, []string{"a.txt"}, relPaths(entries))
}

func TestLocalEnumeratorResumesFromToken(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirA"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dirB"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirA", "x.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirB", "y.txt"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "root.txt"), []byte("r"), 0o644))

	first, err := enumerate.NewLocalEnumerator(root, "", true, false, continuation.Token{})
	require.NoError(t, err)

	// Consume up through "dirA/x.txt", then resume a fresh enumerator from that point.
	var last enumerate.Entry
	for i := 0; i < 2; i++ {
		e, ok, err := first.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		last = e
	}
	require.Equal(t, "dirA/x.txt", last.RelPath)

	resumed, err := enumerate.NewLocalEnumerator(root, "", true, false, first.ContinuationToken())
	require.NoError(t, err)
	entries := drainLocal(t, resumed)
	require.Equal(t, []string{"dirB", "dirB/y.txt", "root.txt"}, relPaths(entries))
}

func TestLocalEnumeratorDoneTokenYieldsNothing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	en, err := enumerate.NewLocalEnumerator(root, "", true, false, continuation.Token{Done: true})
	require.NoError(t, err)

	entries := drainLocal(t, en)
	require.Empty(t, entries)
}
