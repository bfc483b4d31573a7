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

// Package continuation implements C4: opaque, serializable resume points for
// enumerators. Resuming with a Token yields exactly the entries that would have
// followed had enumeration not been interrupted, per §4.3.
package continuation

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/datamovement/dmcore/common"
)

// Kind identifies which enumerator a Token belongs to, so the journal (§4.7) and the
// engine can decode it with the right enumerator-specific payload.
type Kind uint8

const (
	KindLocal Kind = iota
	KindBlobDirectory
)

// Token is opaque to everything except the enumerator that produced it. LocalLastRelPath
// is populated for KindLocal; BlobMarker is populated for KindBlobDirectory.
type Token struct {
	Kind Kind

	// LocalLastRelPath resumes a directory walk: the last relative path returned; a
	// resumed walk skips every entry up to and including it.
	LocalLastRelPath string

	// BlobMarker is the continuation/marker string threaded through
	// BlobClient.ListBlobsSegmented, mirroring the teacher's traverser Marker field.
	BlobMarker string

	// Done marks an enumerator that has been fully exhausted; resuming with a Done
	// token immediately yields no entries.
	Done bool
}

// Empty is the starting token for a fresh enumeration.
func Empty(kind Kind) Token { return Token{Kind: kind} }

// Encode serializes t for storage in a journal's fixed 2176-byte sub-directory
// relative-path slot (§4.7). The result must fit in common.JournalSubDirSlotSize
// bytes; a larger encoding is returned as an error, which callers should treat as a
// programming error, not a runtime condition to recover from, since token payloads
// are bounded by construction.
func (t Token) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, errors.Wrap(err, "continuation: encode")
	}
	if buf.Len() > common.JournalSubDirSlotSize {
		return nil, errors.Errorf("continuation: encoded token is %d bytes, exceeds slot size %d", buf.Len(), common.JournalSubDirSlotSize)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. An empty byte slice decodes to the zero Token.
func Decode(b []byte) (Token, error) {
	var t Token
	if len(b) == 0 {
		return t, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&t); err != nil {
		return Token{}, errors.Wrap(err, "continuation: decode")
	}
	return t, nil
}
