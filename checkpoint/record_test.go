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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/location"
)

func TestEncodeLocationRefusesStream(t *testing.T) {
	_, err := checkpoint.EncodeLocation(location.InMemoryStream(nil))
	require.Error(t, err)
}

func TestEncodeDecodeLocationRoundTrip(t *testing.T) {
	l := location.RemoteBlob("https://acct.blob.core.windows.net/c/f.txt", common.EBlobType.BlockBlob(), nil, location.RequestOptions{})
	rec, err := checkpoint.EncodeLocation(l)
	require.NoError(t, err)

	back := rec.Decode()
	require.Equal(t, l.Kind, back.Kind)
	require.Equal(t, l.URI, back.URI)
	require.Equal(t, l.BlobType, back.BlobType)
}

func TestTransferRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := checkpoint.TransferRecord{
		Source:       checkpoint.LocationRecord{Kind: common.ELocation.LocalFile(), Path: "/tmp/x"},
		Destination:  checkpoint.LocationRecord{Kind: common.ELocation.RemoteBlob(), URI: "https://x/y"},
		Method:       common.ETransferMethod.SyncCopy(),
		Status:       common.ETransferStatus.Transfer(),
		Overwrite:    true,
		CopyID:       "copy-1",
		Window:       []checkpoint.ChunkRange{{Offset: 0, Length: 100}, {Offset: 100, Length: 50}},
		RelativePath: "a/b/c",
	}

	b, err := rec.Encode(common.JournalBaseTransferSize)
	require.NoError(t, err)

	got, err := checkpoint.DecodeTransferRecord(b)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestTransferRecordEncodeExceedsBudget(t *testing.T) {
	rec := checkpoint.TransferRecord{RelativePath: strings.Repeat("x", 10000)}
	_, err := rec.Encode(64)
	require.Error(t, err)
}

func TestDecodeEmptyBytesIsZeroRecord(t *testing.T) {
	got, err := checkpoint.DecodeTransferRecord(nil)
	require.NoError(t, err)
	require.Equal(t, checkpoint.TransferRecord{}, got)
}

func TestTrimWindowKeepsMostRecentEntries(t *testing.T) {
	var w []checkpoint.ChunkRange
	for i := 0; i < common.MaxCountInTransferWindow+10; i++ {
		w = append(w, checkpoint.ChunkRange{Offset: int64(i), Length: 1})
	}
	trimmed := checkpoint.TrimWindow(w)
	require.Len(t, trimmed, common.MaxCountInTransferWindow)
	require.Equal(t, w[len(w)-common.MaxCountInTransferWindow:], trimmed)
}

func TestTrimWindowNoopWhenUnderLimit(t *testing.T) {
	w := []checkpoint.ChunkRange{{Offset: 0, Length: 1}}
	require.Equal(t, w, checkpoint.TrimWindow(w))
}
