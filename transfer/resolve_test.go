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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDestinationPathIdentityWhenKindsMatch(t *testing.T) {
	require.Equal(t, "a/b/c.txt", ResolveDestinationPath("a/b/c.txt", true, true, "/"))
	require.Equal(t, "a/b/c.txt", ResolveDestinationPath("a/b/c.txt", false, false, "/"))
}

func TestResolveDestinationPathLocalToBlobNormalizesSeparators(t *testing.T) {
	got := ResolveDestinationPath(`a\b\c.txt`, true, false, "/")
	require.Equal(t, "a/b/c.txt", got)
}

func TestResolveDestinationPathBlobToLocalFoldsDelimiter(t *testing.T) {
	got := ResolveDestinationPath("a/b//c.txt", false, true, "/")
	require.Equal(t, filepath.Join("a", "b", "c.txt"), got)
}

func TestResolveDestinationPathBlobToLocalDefaultsDelimiterToSlash(t *testing.T) {
	got := ResolveDestinationPath("a/b/c.txt", false, true, "")
	require.Equal(t, filepath.Join("a", "b", "c.txt"), got)
}
