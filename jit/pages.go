package jit

import (
	"sync"

	"github.com/rvhart/rvsim/bitops"
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift
)

// pageBits is a lazily-populated two-level bitmap indexed by guest physical
// page number: page>>5 selects a 32-bit word, page&31 selects the bit
// within it, matching spec section 4.7's "two parallel bit-matrices"
// description scaled to an unbounded physical address space instead of a
// fixed array. All bit operations are RELAXED per spec section 4.7's note
// that ordering comes from the icache flush and the lookup's atomic AND,
// not from these bits themselves.
type pageBits struct {
	mu    sync.RWMutex
	words map[uint64]*bitops.Word32
}

func (p *pageBits) word(page uint64, create bool) *bitops.Word32 {
	idx := page >> 5
	p.mu.RLock()
	w := p.words[idx]
	p.mu.RUnlock()
	if w != nil || !create {
		return w
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.words == nil {
		p.words = make(map[uint64]*bitops.Word32)
	}
	if w = p.words[idx]; w == nil {
		w = &bitops.Word32{}
		p.words[idx] = w
	}
	return w
}

func (p *pageBits) test(page uint64) bool {
	w := p.word(page, false)
	if w == nil {
		return false
	}
	bit := uint32(1) << (page & 31)
	return w.Load(bitops.Relaxed)&bit != 0
}

func (p *pageBits) set(page uint64) {
	w := p.word(page, true)
	bit := uint32(1) << (page & 31)
	w.Or(bit, bitops.Relaxed)
}

func (p *pageBits) clear(page uint64) {
	w := p.word(page, false)
	if w == nil {
		return
	}
	bit := uint32(1) << (page & 31)
	w.And(^bit, bitops.Relaxed)
}

// testAndClear atomically reads a bit and, if set, clears it, returning
// whether it had been set. This is the "atomic AND that dequeues the dirty
// bit" spec section 5 relies on for cross-hart ordering.
func (p *pageBits) testAndClear(page uint64) bool {
	w := p.word(page, false)
	if w == nil {
		return false
	}
	bit := uint32(1) << (page & 31)
	for {
		old := w.Load(bitops.Relaxed)
		if old&bit == 0 {
			return false
		}
		if w.CompareAndSet(old, old&^bit, bitops.Relaxed) {
			return true
		}
	}
}
