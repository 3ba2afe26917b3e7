package csr

// satp mode encodings (Sv32 layout for RV32, Sv39/48/57 for RV64).
const (
	satpBare uint8 = 0
	satpSv32 uint8 = 1
	satpSv39 uint8 = 8
	satpSv48 uint8 = 9
	satpSv57 uint8 = 10
)

// SatpMode/SatpRoot expose the decoded fields for the mmu package's walker,
// which is handed the Bank's view rather than re-decoding the raw CSR.
func (b *Bank) SatpMode() uint8  { return b.satpMode }
func (b *Bank) SatpRoot() uint64 { return b.satpRoot }

func (b *Bank) readSATP(ctx Context) uint64 {
	if ctx.XLEN() == 32 {
		return (uint64(b.satpMode) << 31) | (b.satpRoot & 0x3fffff)
	}
	return (uint64(b.satpMode) << 60) | (b.satpRoot & 0xfffffffffff)
}

// writeSATP decodes mode/ppn per XLEN, clamping unsupported modes to Bare,
// and flushes the TLB whenever paging is toggled on, off, or the root table
// address changes (spec section 4.4: satp writes invalidate the TLB).
func (b *Bank) writeSATP(ctx Context, newVal uint64) bool {
	var mode uint8
	var root uint64
	if ctx.XLEN() == 32 {
		mode = uint8((newVal >> 31) & 0x1)
		root = newVal & 0x3fffff
		if mode != satpBare {
			mode = satpSv32
		}
	} else {
		mode = uint8((newVal >> 60) & 0xf)
		root = newVal & 0xfffffffffff
		switch mode {
		case satpSv39, satpSv48, satpSv57:
			// supported
		default:
			mode = satpBare
		}
	}

	if mode != b.satpMode || root != b.satpRoot {
		b.satpMode = mode
		b.satpRoot = root
		ctx.FlushTLB()
	}
	return true
}
