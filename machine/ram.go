package machine

import (
	"sync"

	"github.com/rvhart/rvsim/jit"
)

// RAM is the machine's flat physical memory window, grounded on the
// teacher's emu/memory.go mem struct: a single backing array plus a
// parallel per-block dirty/access tracking structure, generalized here from
// 2 KiB "key" blocks to 4 KiB pages so it lines up with the MMU's page size
// and the JIT's jited/dirty page bits.
type RAM struct {
	mu    sync.RWMutex
	base  uint64 // mem.begin
	bytes []byte
	heap  *jit.Heap // nil when JIT is disabled
}

// NewRAM allocates a RAM window of size bytes starting at physical address
// base.
func NewRAM(base, size uint64, heap *jit.Heap) *RAM {
	return &RAM{base: base, bytes: make([]byte, size), heap: heap}
}

func (r *RAM) inWindow(pa, size uint64) bool {
	if pa < r.base {
		return false
	}
	end := pa - r.base + size
	return end <= uint64(len(r.bytes))
}

// ReadPhys implements the external read_ram interface (spec section 6).
func (r *RAM) ReadPhys(pa uint64, buf []byte) bool {
	if !r.inWindow(pa, uint64(len(buf))) {
		return false
	}
	r.mu.RLock()
	copy(buf, r.bytes[pa-r.base:])
	r.mu.RUnlock()
	return true
}

// WritePhys implements write_ram, invoking mark_dirty_mem on the JIT heap
// afterward per spec section 6.
func (r *RAM) WritePhys(pa uint64, buf []byte) bool {
	if !r.inWindow(pa, uint64(len(buf))) {
		return false
	}
	r.mu.Lock()
	copy(r.bytes[pa-r.base:], buf)
	r.mu.Unlock()
	jit.MarkDirtyMem(r.heap, pa, uint64(len(buf)))
	return true
}

// ReadPTE/WritePTE/Page implement mmu.Mem directly against the flat buffer;
// page-table entries always live inside the RAM window in this model (no
// separate device-backed page tables).
func (r *RAM) ReadPTE(pa uint64, wide bool) (uint64, bool) {
	n := 4
	if wide {
		n = 8
	}
	buf := make([]byte, n)
	if !r.ReadPhys(pa, buf) {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, true
}

func (r *RAM) WritePTE(pa uint64, val uint64, wide bool) bool {
	n := 4
	if wide {
		n = 8
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(val >> (8 * i))
	}
	return r.WritePhys(pa, buf)
}

func (r *RAM) Page(ppn uint64) ([]byte, bool) {
	pa := ppn << 12
	if !r.inWindow(pa, 4096) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytes[pa-r.base : pa-r.base+4096], true
}

// LoadImage copies data into RAM starting at physical address pa, for
// bootrom/kernel image loading by main.go.
func (r *RAM) LoadImage(pa uint64, data []byte) bool {
	return r.WritePhys(pa, data)
}
