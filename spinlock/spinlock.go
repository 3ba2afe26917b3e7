/*
   spinlock - Single word test-and-set mutual exclusion.

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

// Package spinlock implements a busy-wait test-and-set lock over one word.
// It gives no fairness guarantee and is meant only for the short, uncontended
// critical sections inside the JIT code cache (block_finalize, the dirty-page
// remove path, flush_cache) where a full sync.Mutex parking a goroutine would
// be overkill relative to the work being protected.
package spinlock

import "sync/atomic"

// Lock is a single-word spinlock. The zero value is unlocked.
type Lock struct {
	state atomic.Uint32
}

// Lock busy-swaps 0<->1 until it wins the swap from 0 to 1.
func (l *Lock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		// Uncontended in practice; no backoff needed for the critical
		// sections this guards.
	}
}

// TryLock attempts the swap once and reports whether it succeeded.
func (l *Lock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock stores 0, releasing the lock.
func (l *Lock) Unlock() {
	l.state.Store(0)
}
