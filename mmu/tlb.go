package mmu

// tlbEntries must be a power of two; direct-mapped, indexed by the low bits
// of the virtual page number per spec section 4.4.
const tlbEntries = 256

type tlbEntry struct {
	valid bool
	vpn   uint64 // full virtual page number, for tag comparison beyond the index
	priv  uint8
	perm  Access
	ppn   uint64 // physical page number
}

// TLB is a per-hart direct-mapped translation cache. Zero value is empty.
type TLB struct {
	entries [tlbEntries]tlbEntry
}

func (t *TLB) index(vpn uint64) uint64 { return vpn & (tlbEntries - 1) }

// check implements tlb_check: true iff the tag matches vpn/priv and the
// entry's permission bits cover access.
func (t *TLB) check(vpn uint64, priv uint8, access Access) (ppn uint64, ok bool) {
	e := &t.entries[t.index(vpn)]
	if !e.valid || e.vpn != vpn || e.priv != priv {
		return 0, false
	}
	if e.perm&access != access {
		return 0, false
	}
	return e.ppn, true
}

// install records a freshly walked translation.
func (t *TLB) install(vpn uint64, priv uint8, perm Access, ppn uint64) {
	t.entries[t.index(vpn)] = tlbEntry{valid: true, vpn: vpn, priv: priv, perm: perm, ppn: ppn}
}

// Flush invalidates every entry: called on privilege transitions that change
// translation, SATP writes that toggle mode or root, and SFENCE.VMA.
func (t *TLB) Flush() {
	for i := range t.entries {
		t.entries[i] = tlbEntry{}
	}
}

// blockInsidePage reports whether a size-byte access at addr ends before the
// last byte of its 4 KiB page (spec section 4.5/8's block_inside_page
// invariant). An access that ends exactly on the page's last byte, such as 4
// bytes at offset 0xFFC, is reported as not inside and so takes the walker.
func blockInsidePage(addr uint64, size uint64) bool {
	return (addr & pageMask) < pageSize-size
}
