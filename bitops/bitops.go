/*
   bitops - Atomic primitives and bit manipulation helpers for the hart core.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package bitops provides the typed atomic load/store/RMW primitives and the
// bit-field helpers the rest of the core builds on. Go's memory model does not
// expose separate acquire/release/relaxed barriers the way C11 does, so Order
// is carried only to document intent at call sites; every operation here maps
// onto sync/atomic, which is always sequentially consistent.
package bitops

import "sync/atomic"

// Order documents the intended memory ordering of an atomic operation. The Go
// runtime does not offer weaker-than-seqcst atomics, so this is advisory only.
type Order int

const (
	Relaxed Order = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

// Word32 is a 32-bit word accessed exclusively through atomic operations.
type Word32 struct{ v atomic.Uint32 }

func (w *Word32) Load(_ Order) uint32 { return w.v.Load() }

func (w *Word32) Store(val uint32, _ Order) { w.v.Store(val) }

func (w *Word32) Swap(val uint32, _ Order) uint32 { return w.v.Swap(val) }

func (w *Word32) Or(mask uint32, _ Order) uint32 { return w.v.Or(mask) }

func (w *Word32) And(mask uint32, _ Order) uint32 { return w.v.And(mask) }

// CompareAndSet reports whether the swap of old for next succeeded.
func (w *Word32) CompareAndSet(old, next uint32, _ Order) bool {
	return w.v.CompareAndSwap(old, next)
}

// Word64 is the 64-bit counterpart of Word32.
type Word64 struct{ v atomic.Uint64 }

func (w *Word64) Load(_ Order) uint64 { return w.v.Load() }

func (w *Word64) Store(val uint64, _ Order) { w.v.Store(val) }

func (w *Word64) Swap(val uint64, _ Order) uint64 { return w.v.Swap(val) }

func (w *Word64) Or(mask uint64, _ Order) uint64 { return w.v.Or(mask) }

func (w *Word64) And(mask uint64, _ Order) uint64 { return w.v.And(mask) }

func (w *Word64) CompareAndSet(old, next uint64, _ Order) bool {
	return w.v.CompareAndSwap(old, next)
}

// Add adds delta and returns the new value, for monotonic counters like the
// platform timer.
func (w *Word64) Add(delta uint64, _ Order) uint64 { return w.v.Add(delta) }

// BitCut returns the width bits of word starting at bit position start.
func BitCut(word uint64, start, width uint) uint64 {
	if width >= 64 {
		return word >> start
	}
	return (word >> start) & ((uint64(1) << width) - 1)
}

// BitReplace returns word with the width bits starting at start replaced by
// the low width bits of value.
func BitReplace(word uint64, start, width uint, value uint64) uint64 {
	var mask uint64
	if width >= 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << width) - 1
	}
	word &^= mask << start
	word |= (value & mask) << start
	return word
}

// BitNextPow2 returns the smallest power of two greater than or equal to x.
// x == 0 returns 1.
func BitNextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}
