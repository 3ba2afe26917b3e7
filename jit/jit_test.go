package jit

import "testing"

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	h, err := New(64*1024, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = h.Release() })
	return h
}

func TestFinalizeAndLookup(t *testing.T) {
	h := newTestHeap(t)
	b := BlockInit(0x1000)
	b.Emit([]byte{0x90, 0x90, 0x90, 0x90})
	offset, ok := h.Finalize(b, func([]byte, uint64) {})
	if !ok {
		t.Fatalf("finalize failed")
	}
	got, hit := h.Lookup(0x1000)
	if !hit || got != offset {
		t.Fatalf("lookup = (%d, %v), want (%d, true)", got, hit, offset)
	}
}

func TestLookupMissForUncompiledBlock(t *testing.T) {
	h := newTestHeap(t)
	if _, hit := h.Lookup(0x2000); hit {
		t.Fatalf("expected miss for never-compiled block")
	}
}

func TestMarkDirtyMemInvalidatesBlock(t *testing.T) {
	h := newTestHeap(t)
	b := BlockInit(0x3000)
	b.Emit([]byte{0x90})
	h.Finalize(b, func([]byte, uint64) {})

	MarkDirtyMem(h, 0x3000, 1)

	if _, hit := h.Lookup(0x3000); hit {
		t.Fatalf("expected lookup to miss after mark_dirty_mem")
	}
	if _, hit := h.Lookup(0x3000); hit {
		t.Fatalf("expected lookup to keep missing: no block should remain in the page")
	}
}

func TestPendingLinkIsPatchedOnTargetFinalize(t *testing.T) {
	h := newTestHeap(t)

	caller := BlockInit(0x4000)
	caller.Emit([]byte{0, 0, 0, 0, 0, 0, 0, 0}) // placeholder jump site at offset 0
	caller.DeferLink(0x5000, 0)
	callerOff, ok := h.Finalize(caller, func([]byte, uint64) {})
	if !ok {
		t.Fatalf("finalize caller failed")
	}

	patched := false
	var patchedTarget uint64
	patch := func(site []byte, target uint64) {
		patched = true
		patchedTarget = target
	}

	target := BlockInit(0x5000)
	target.Emit([]byte{0x90})
	targetOff, ok := h.Finalize(target, patch)
	if !ok {
		t.Fatalf("finalize target failed")
	}
	if !patched {
		t.Fatalf("expected pending link to be patched once target compiled")
	}
	if patchedTarget != targetOff {
		t.Fatalf("patched target = %d, want %d", patchedTarget, targetOff)
	}
	_ = callerOff
}

func TestFlushCacheIdempotent(t *testing.T) {
	h := newTestHeap(t)
	b := BlockInit(0x1000)
	b.Emit([]byte{0x90})
	h.Finalize(b, func([]byte, uint64) {})

	if err := h.FlushCache(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if _, hit := h.Lookup(0x1000); hit {
		t.Fatalf("expected registry cleared after flush")
	}
	if err := h.FlushCache(); err != nil {
		t.Fatalf("second flush: %v", err)
	}
}

func TestPageBitsSetTestClear(t *testing.T) {
	var p pageBits
	if p.test(42) {
		t.Fatalf("expected bit unset initially")
	}
	p.set(42)
	if !p.test(42) {
		t.Fatalf("expected bit set")
	}
	if !p.testAndClear(42) {
		t.Fatalf("expected testAndClear to observe the set bit")
	}
	if p.test(42) {
		t.Fatalf("expected bit cleared after testAndClear")
	}
	if p.testAndClear(42) {
		t.Fatalf("expected second testAndClear to report false")
	}
}
