package csr

// Rounding mode encodings used by frm/fcsr[7:5].
const (
	rmRNE uint8 = 0
	rmRTZ uint8 = 1
	rmRDN uint8 = 2
	rmRUP uint8 = 3
	rmRMM uint8 = 4
	// 5 and 6 are reserved; 7 (DYN) is invalid inside fcsr/frm itself.
)

// writeFCSR commits a new fflags/frm/fcsr value: it pushes the rounding mode
// to the host FPU and reconciles the host's own sticky exception flags with
// whatever the write just dropped, since this core does not interpret
// floating-point instructions itself but delegates to host arithmetic (spec
// section 4.3's note that fflags/frm/fcsr are "thin shims over host FP
// state").
func (b *Bank) writeFCSR(ctx Context, newFCSR uint32) bool {
	rm := uint8((newFCSR >> 5) & 0x7)
	if rm > rmRMM {
		return false // reserved rounding mode encoding
	}

	oldFlags := b.fcsr & 0x1f
	newFlags := newFCSR & 0x1f
	b.fcsr = newFCSR & 0xff

	// A write that clears a flag the host FPU still has set must reset the
	// host's sticky state too, or the next read would see it reappear.
	if oldFlags&^newFlags != 0 {
		ctx.ClearHostFPFlags()
	}

	ctx.SetHostRoundingMode(rm)
	return true
}
