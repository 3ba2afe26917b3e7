package jit

// Block accumulates the emit buffer and deferred links for one in-progress
// compilation, per spec section 4.7's block_init/block_finalize pair and
// section 9's note on modeling the cyclic block-link registry as an
// arena-owned map from phys-PC to patch sites.
type Block struct {
	physPC uint64
	emit   []byte
	links  map[uint64][]uint64 // target phys_pc -> patch-site offsets relative to this block
}

// BlockInit resets the per-block emit buffer and link list (block_init).
func BlockInit(physPC uint64) *Block {
	return &Block{physPC: physPC, links: make(map[uint64][]uint64)}
}

// Emit appends host code bytes to the block under construction.
func (b *Block) Emit(code []byte) { b.emit = append(b.emit, code...) }

// DeferLink records that this block contains, at byte offset siteOffset
// (relative to the block's own start), a call/jump site that must be
// patched once target is compiled.
func (b *Block) DeferLink(target uint64, siteOffset uint64) {
	b.links[target] = append(b.links[target], siteOffset)
}

// Patcher installs a jump displacement at a code-heap offset; implemented
// host-arch-specifically by the caller (outside this package's scope,
// mirroring spec section 1's exclusion of codegen backends).
type Patcher func(siteAddr []byte, targetOffset uint64)

// Finalize implements block_finalize: append the block to the heap,
// publish it in the registry, patch any sites that were waiting on it as a
// target, record this block's own deferred links, and mark the page jited.
func (h *Heap) Finalize(b *Block, patch Patcher) (offset uint64, ok bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	offset, ok = h.Emit(b.emit)
	if !ok {
		return 0, false
	}
	h.blocks[b.physPC] = offset

	for target, sites := range b.links {
		for _, site := range sites {
			h.links[target] = append(h.links[target], offset+site)
		}
	}

	if sites, pending := h.links[b.physPC]; pending {
		for _, siteOff := range sites {
			patch(h.data[siteOff:], offset)
			FlushIcache(h.code[siteOff:siteOff+8], h.log)
		}
		delete(h.links, b.physPC)
	}

	FlushIcache(h.code[offset:offset+uint64(len(b.emit))], h.log)
	h.jited.set(b.physPC >> pageShift)

	return offset, true
}

// Lookup implements block_lookup: if the block's page has gone dirty since
// it was compiled, atomically claim the invalidation, purge every block and
// link in that page, and report a miss; otherwise return the registered
// offset.
func (h *Heap) Lookup(physPC uint64) (offset uint64, hit bool) {
	page := physPC >> pageShift
	if h.dirty.testAndClear(page) {
		h.invalidatePage(page)
		return 0, false
	}
	h.lock.Lock()
	offset, hit = h.blocks[physPC]
	h.lock.Unlock()
	return offset, hit
}

func (h *Heap) invalidatePage(page uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	base := page << pageShift
	for pc := range h.blocks {
		if pc>>pageShift == page {
			delete(h.blocks, pc)
		}
	}
	for pc := range h.links {
		if pc>>pageShift == page {
			delete(h.links, pc)
		}
	}
	h.jited.clear(page)
	_ = base
}

// MarkDirtyMem implements mark_dirty_mem: for every 4 KiB page in
// [addr, addr+size), if it was jited, flip it from jited to dirty. Called
// by the machine's physical-memory write path.
func MarkDirtyMem(h *Heap, addr uint64, size uint64) {
	if h == nil {
		return
	}
	first := addr >> pageShift
	last := (addr + size - 1) >> pageShift
	for p := first; p <= last; p++ {
		if h.jited.test(p) {
			h.dirty.set(p)
			h.jited.clear(p)
		}
	}
}

// FlushCache implements flush_cache: reset every registry and bit matrix of
// a non-empty heap; when more than flushThreshold bytes of the heap are
// used, first release the physical backing through remap. Two consecutive
// calls leave the heap in the same state as one
// (spec section 8 property 7): the second call sees curr==0 and returns
// immediately.
func (h *Heap) FlushCache() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.curr == 0 {
		return nil
	}
	if h.curr <= flushThreshold {
		h.resetRegistries()
		return nil
	}
	if err := h.remap(); err != nil {
		return err
	}
	h.resetRegistries()
	return nil
}

func (h *Heap) resetRegistries() {
	h.blocks = make(map[uint64]uint64)
	h.links = make(map[uint64][]uint64)
	h.jited = pageBits{}
	h.dirty = pageBits{}
	h.curr = 0
}
