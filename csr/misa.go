package csr

// misaMXL encodes the MXL field value for a given XLEN.
func misaMXL(xlen int) uint64 {
	if xlen == 64 {
		return 2
	}
	return 1
}

// misa reports the current architecture: the MXL field reflects the hart's
// live XLEN (which may differ from SupportedMISA's default after a prior
// write switched it), ORed with the fixed extension bitmap the machine was
// built with.
func (b *Bank) misa(ctx Context) uint64 {
	xlen := ctx.XLEN()
	shift := uint(30)
	if xlen == 64 {
		shift = 62
	}
	return (misaMXL(xlen) << shift) | (ctx.SupportedMISA() &^ (uint64(3) << 62) &^ (uint64(3) << 30))
}

// applyMISA handles a write to misa. Only the MXL field is mutable, and only
// when the machine supports the requested width: SupportedMISA always
// encodes the machine's configured MXL in bits 62-63 (the same fixed
// position main.go's defaultMISA uses regardless of build XLEN), so a
// nonzero field there names the one width this machine was built for and
// any switch to the other width is a no-op. A zero field (as left by tests
// that don't care about this detail) is treated as unrestricted, matching
// spec section 8's boundary case ("a machine that does not support the
// target width") without forcing every caller to populate it.
// Extension letters cannot be toggled at runtime: this core's decoder and
// trap/MMU behavior are fixed at build time per spec section 4.3's note that
// misa is "mostly informational" for a model this size.
func (b *Bank) applyMISA(ctx Context, newVal uint64) {
	hi := uint(30)
	if ctx.XLEN() == 64 {
		hi = 62
	}
	mxl := (newVal >> hi) & 0x3

	native := (ctx.SupportedMISA() >> 62) & 0x3
	supported := native == 0 || native == mxl
	if !supported {
		return
	}

	switch mxl {
	case 1:
		if ctx.XLEN() != 32 {
			ctx.SetXLEN(32)
			ctx.FlushTLB()
		}
	case 2:
		if ctx.XLEN() != 64 {
			ctx.SetXLEN(64)
			ctx.FlushTLB()
		}
	}
}
