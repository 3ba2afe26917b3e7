package mmu

import "github.com/rvhart/rvsim/csr"

// levelSpec describes one mode's page-table shape: number of levels, bits of
// VPN per level, and whether PTEs are 8 bytes (Sv39/48/57) or 4 (Sv32).
type levelSpec struct {
	levels   int
	vpnBits  uint
	wide     bool
	physBits uint // bits of PPN kept in a non-leaf/leaf PTE (architectural max, not enforced strictly)
}

func spec(mode Mode) (levelSpec, bool) {
	switch mode {
	case Sv32:
		return levelSpec{levels: 2, vpnBits: 10, wide: false, physBits: 22}, true
	case Sv39:
		return levelSpec{levels: 3, vpnBits: 9, wide: true, physBits: 44}, true
	case Sv48:
		return levelSpec{levels: 4, vpnBits: 9, wide: true, physBits: 44}, true
	case Sv57:
		return levelSpec{levels: 5, vpnBits: 9, wide: true, physBits: 44}, true
	}
	return levelSpec{}, false
}

// PTE flag bits, identical layout across Sv32/39/48/57.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

func accessBits(a Access) uint64 {
	var want uint64
	if a&Read != 0 {
		want |= pteR
	}
	if a&Write != 0 {
		want |= pteW
	}
	if a&Exec != 0 {
		want |= pteX
	}
	return want
}

// Check performs tlb_check: a fast-path lookup that also enforces
// block_inside_page for the requested access width.
func (t *TLB) Check(vaddr uint64, size uint64, priv csr.Privilege, access Access) (pa uint64, ok bool) {
	if !blockInsidePage(vaddr, size) {
		return 0, false
	}
	vpn := vaddr >> pageShift
	ppn, hit := t.check(vpn, uint8(priv), access)
	if !hit {
		return 0, false
	}
	return (ppn << pageShift) | (vaddr & pageMask), true
}

// Walk performs mmu_op: walk the page table rooted at rootPPN per mode,
// enforcing valid/permission/SUM/MXR/privilege rules and superpage
// alignment, install a TLB entry on success, and return the translated
// physical address. On failure it returns a *Fault describing the faulting
// access for the caller to hand to trap().
func (t *TLB) Walk(ctx Context, mem Mem, mode Mode, rootPPN uint64, vaddr uint64, access Access) (uint64, *Fault) {
	if mode == Bare {
		return vaddr, nil
	}
	ls, known := spec(mode)
	if !known {
		return vaddr, nil
	}

	fault := &Fault{Access: access, Vaddr: vaddr}

	vpnBitsTotal := ls.vpnBits * uint(ls.levels)
	vpn := (vaddr >> pageShift) & ((1 << vpnBitsTotal) - 1)

	ppn := rootPPN
	var pte uint64
	var pteAddr uint64
	level := ls.levels - 1
	for level >= 0 {
		shift := uint(level) * ls.vpnBits
		idx := (vpn >> shift) & ((1 << ls.vpnBits) - 1)
		pteAddr = (ppn << pageShift) + idx*pteEntrySize(ls.wide)

		raw, ok := mem.ReadPTE(pteAddr, ls.wide)
		if !ok {
			return 0, fault
		}
		pte = raw

		if pte&pteV == 0 || (pte&pteW != 0 && pte&pteR == 0) {
			return 0, fault
		}

		leaf := pte&(pteR|pteX) != 0
		if leaf {
			break
		}
		ppn = pte >> 10
		level--
		if level < 0 {
			return 0, fault
		}
	}

	// Superpage alignment: every VPN field below the level the leaf was
	// found at must be zero in the PTE's PPN.
	for l := 0; l < level; l++ {
		shift := 10 + uint(l)*ls.vpnBits
		if (pte>>shift)&((1<<ls.vpnBits)-1) != 0 {
			return 0, fault
		}
	}

	if !permitted(ctx, pte, access) {
		return 0, fault
	}

	// Accessed/dirty bit maintenance.
	newPTE := pte | pteA
	if access&Write != 0 {
		newPTE |= pteD
	}
	if newPTE != pte {
		mem.WritePTE(pteAddr, newPTE, ls.wide)
		pte = newPTE
	}

	// Superpage: the low-order VPN fields the walk never descended into are
	// spliced from vpn directly; the alignment check above guarantees the
	// PTE's own bits there are zero.
	leafPPN := pte >> 10
	if level > 0 {
		lowBits := uint(level) * ls.vpnBits
		leafPPN |= vpn & ((1 << lowBits) - 1)
	}

	perm := permBits(pte)
	t.install(vaddr>>pageShift, uint8(ctx.Privilege()), perm, leafPPN)

	return (leafPPN << pageShift) | (vaddr & pageMask), nil
}

func pteEntrySize(wide bool) uint64 {
	if wide {
		return 8
	}
	return 4
}

func permBits(pte uint64) Access {
	var p Access
	if pte&pteR != 0 {
		p |= Read
	}
	if pte&pteW != 0 {
		p |= Write
	}
	if pte&pteX != 0 {
		p |= Exec
	}
	return p
}

func permitted(ctx Context, pte uint64, access Access) bool {
	u := pte&pteU != 0
	priv := ctx.Privilege()

	switch priv {
	case csr.User:
		if !u {
			return false
		}
	default: // Supervisor, Machine (Machine never walks through this path in practice)
		if u && !ctx.SUM() {
			return false
		}
		if u && access == Exec {
			// Supervisor may never execute a U-accessible page, SUM or not.
			return false
		}
	}

	readable := pte&pteR != 0
	if ctx.MXR() && pte&pteX != 0 {
		readable = true
	}

	switch {
	case access&Exec != 0:
		return pte&pteX != 0
	case access&Write != 0:
		return pte&pteW != 0 && pte&pteR != 0
	default:
		return readable
	}
}
