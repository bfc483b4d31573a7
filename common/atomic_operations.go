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

package common

import "sync/atomic"

// Integer is the set of widths this package does atomic arithmetic over. Kept local
// rather than pulled from golang.org/x/exp/constraints, which the teacher's module
// does not declare as a direct dependency.
type Integer interface {
	~int32 | ~int64 | ~uint32 | ~uint64
}

// AtomicMorphInt64 atomically replaces *addr with morph(*addr) and returns the
// morph's side value, retrying on CAS contention. This is the generic shape behind
// every "don't downgrade a terminal status" update in the transfer state machine.
func AtomicMorphInt64[T ~int64](addr *T, morph func(start T) (val T, result any)) any {
	for {
		start := T(atomic.LoadInt64((*int64)(addr)))
		val, result := morph(start)
		if atomic.CompareAndSwapInt64((*int64)(addr), int64(start), int64(val)) {
			return result
		}
	}
}

// AtomicMorphInt32 is AtomicMorphInt64's 32-bit counterpart.
func AtomicMorphInt32[T ~int32](addr *T, morph func(start T) (val T, result any)) any {
	for {
		start := T(atomic.LoadInt32((*int32)(addr)))
		val, result := morph(start)
		if atomic.CompareAndSwapInt32((*int32)(addr), int32(start), int32(val)) {
			return result
		}
	}
}

// IffInt64 is a small ternary helper, used the way the teacher's Iffint32 is used in
// SetTransferStatus: pick a to keep the existing terminal value, b to accept the new one.
func IffInt64[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
