package mmu

import (
	"testing"

	"github.com/rvhart/rvsim/csr"
)

type fakeCtx struct {
	priv csr.Privilege
	sum  bool
	mxr  bool
}

func (f fakeCtx) Privilege() csr.Privilege { return f.priv }
func (f fakeCtx) SUM() bool                { return f.sum }
func (f fakeCtx) MXR() bool                { return f.mxr }

// fakeMem is a flat byte array standing in for physical RAM, large enough
// for a couple of page tables and leaf pages.
type fakeMem struct {
	buf [64 * 1024]byte
}

func (m *fakeMem) ReadPTE(pa uint64, wide bool) (uint64, bool) {
	if wide {
		if pa+8 > uint64(len(m.buf)) {
			return 0, false
		}
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(m.buf[pa+uint64(i)]) << (8 * i)
		}
		return v, true
	}
	if pa+4 > uint64(len(m.buf)) {
		return 0, false
	}
	var v uint64
	for i := 0; i < 4; i++ {
		v |= uint64(m.buf[pa+uint64(i)]) << (8 * i)
	}
	return v, true
}

func (m *fakeMem) WritePTE(pa uint64, val uint64, wide bool) bool {
	n := 4
	if wide {
		n = 8
	}
	if pa+uint64(n) > uint64(len(m.buf)) {
		return false
	}
	for i := 0; i < n; i++ {
		m.buf[pa+uint64(i)] = byte(val >> (8 * i))
	}
	return true
}

func (m *fakeMem) Page(ppn uint64) ([]byte, bool) {
	pa := ppn << pageShift
	if pa+pageSize > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[pa : pa+pageSize], true
}

func (m *fakeMem) setPTE(pa uint64, ppn uint64, flags uint64) {
	m.WritePTE(pa, (ppn<<10)|flags, true)
}

func TestWalkSv39TwoLevelLeaf(t *testing.T) {
	var mem fakeMem
	var tlb TLB
	ctx := fakeCtx{priv: csr.Supervisor}

	rootPPN := uint64(1)
	leafPPN := uint64(5)
	vaddr := uint64(0x1000) // vpn[0]=1, vpn[1]=0, vpn[2]=0

	// Level-2 table (root) entry 0 points at a level-1 table at ppn 2.
	mem.setPTE(rootPPN<<pageShift+0*8, 2, pteV)
	// Level-1 table entry 0 points at a level-0 table at ppn 3.
	mem.setPTE(2<<pageShift+0*8, 3, pteV)
	// Level-0 table entry 1 (vpn[0]=1) is the leaf, RWX.
	mem.setPTE(3<<pageShift+1*8, leafPPN, pteV|pteR|pteW|pteX)

	pa, fault := tlb.Walk(ctx, &mem, Sv39, rootPPN, vaddr, Read)
	if fault != nil {
		t.Fatalf("unexpected fault: %+v", fault)
	}
	want := (leafPPN << pageShift) | (vaddr & pageMask)
	if pa != want {
		t.Fatalf("pa = %#x, want %#x", pa, want)
	}

	// Second access should now hit the TLB fast path.
	pa2, ok := tlb.Check(vaddr, 4, csr.Supervisor, Read)
	if !ok {
		t.Fatalf("expected TLB hit after walk")
	}
	if pa2 != want {
		t.Fatalf("tlb hit pa = %#x, want %#x", pa2, want)
	}
}

func TestWalkInvalidPTEFaults(t *testing.T) {
	var mem fakeMem
	var tlb TLB
	ctx := fakeCtx{priv: csr.Supervisor}
	_, fault := tlb.Walk(ctx, &mem, Sv39, 1, 0x1000, Read)
	if fault == nil {
		t.Fatalf("expected fault on all-zero (invalid) PTE chain")
	}
}

func TestWalkUserPageDeniedToSupervisorWithoutSUM(t *testing.T) {
	var mem fakeMem
	var tlb TLB
	ctx := fakeCtx{priv: csr.Supervisor, sum: false}

	mem.setPTE(1<<pageShift+0*8, 2, pteV)
	mem.setPTE(2<<pageShift+0*8, 3, pteV)
	mem.setPTE(3<<pageShift+0*8, 5, pteV|pteR|pteW|pteU)

	_, fault := tlb.Walk(ctx, &mem, Sv39, 1, 0, Read)
	if fault == nil {
		t.Fatalf("expected fault accessing U-page from S-mode without SUM")
	}
}

func TestWalkMXRAllowsReadOfExecOnlyPage(t *testing.T) {
	var mem fakeMem
	var tlb TLB
	ctx := fakeCtx{priv: csr.Supervisor, mxr: true}

	mem.setPTE(1<<pageShift+0*8, 2, pteV)
	mem.setPTE(2<<pageShift+0*8, 3, pteV)
	mem.setPTE(3<<pageShift+0*8, 5, pteV|pteX)

	_, fault := tlb.Walk(ctx, &mem, Sv39, 1, 0, Read)
	if fault != nil {
		t.Fatalf("expected MXR to permit read of X-only page, got fault %+v", fault)
	}
}

func TestBareModeIdentityMaps(t *testing.T) {
	var tlb TLB
	ctx := fakeCtx{priv: csr.Machine}
	pa, fault := tlb.Walk(ctx, &fakeMem{}, Bare, 0, 0xdeadbeef, Read)
	if fault != nil {
		t.Fatalf("bare mode must never fault: %+v", fault)
	}
	if pa != 0xdeadbeef {
		t.Fatalf("bare mode pa = %#x, want identity", pa)
	}
}

func TestFlushClearsEntries(t *testing.T) {
	var mem fakeMem
	var tlb TLB
	ctx := fakeCtx{priv: csr.Supervisor}
	mem.setPTE(1<<pageShift+0*8, 2, pteV)
	mem.setPTE(2<<pageShift+0*8, 3, pteV)
	mem.setPTE(3<<pageShift+1*8, 5, pteV|pteR|pteW|pteX)
	tlb.Walk(ctx, &mem, Sv39, 1, 0x1000, Read)

	tlb.Flush()

	if _, ok := tlb.Check(0x1000, 4, csr.Supervisor, Read); ok {
		t.Fatalf("expected TLB miss after flush")
	}
}

func TestBlockInsidePage(t *testing.T) {
	if blockInsidePage(0xFFC, 4) {
		t.Fatalf("0xFFC width 4 ends on the page's last byte and must be reported as not inside")
	}
	if !blockInsidePage(0xFF8, 4) {
		t.Fatalf("0xFF8 width 4 fits inside a page")
	}
}
