/*
   csr - Control and Status Register identifiers.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package csr

// Privilege identifies one of the three privilege modes this core supports.
// Hypervisor mode is a non-goal; values follow the RISC-V encoding so they can
// be embedded directly in xPP fields.
type Privilege uint8

const (
	User       Privilege = 0
	Supervisor Privilege = 1
	Machine    Privilege = 3
)

func (p Privilege) String() string {
	switch p {
	case User:
		return "U"
	case Supervisor:
		return "S"
	case Machine:
		return "M"
	default:
		return "?"
	}
}

// CSR addresses. Only the subset this core implements behavior for is named;
// everything else falls through to the Unimplemented (read-as-zero) kind.
const (
	Fflags uint16 = 0x001
	Frm    uint16 = 0x002
	Fcsr   uint16 = 0x003

	Sstatus    uint16 = 0x100
	Sie        uint16 = 0x104
	Stvec      uint16 = 0x105
	Scounteren uint16 = 0x106
	Senvcfg    uint16 = 0x10a
	Sscratch   uint16 = 0x140
	Sepc       uint16 = 0x141
	Scause     uint16 = 0x142
	Stval      uint16 = 0x143
	Sip        uint16 = 0x144
	Stimecmp   uint16 = 0x14d
	Stimecmph  uint16 = 0x15d
	Satp       uint16 = 0x180

	Mstatus    uint16 = 0x300
	Misa       uint16 = 0x301
	Medeleg    uint16 = 0x302
	Mideleg    uint16 = 0x303
	Mie        uint16 = 0x304
	Mtvec      uint16 = 0x305
	Mcounteren uint16 = 0x306
	Mstatush   uint16 = 0x310
	Mscratch   uint16 = 0x340
	Mepc       uint16 = 0x341
	Mcause     uint16 = 0x342
	Mtval      uint16 = 0x343
	Mip        uint16 = 0x344
	Mseccfg    uint16 = 0x747

	Pmpcfg0  uint16 = 0x3a0 // .. 0x3af (RV64 uses even indices only)
	Pmpaddr0 uint16 = 0x3b0 // .. 0x3ef

	Mcycle    uint16 = 0xb00
	Minstret  uint16 = 0xb02
	Mcycleh   uint16 = 0xb80
	Minstreth uint16 = 0xb82

	Cycle   uint16 = 0xc00
	Time    uint16 = 0xc01
	Instret uint16 = 0xc02
	Cycleh  uint16 = 0xc80
	Timeh   uint16 = 0xc81
	Instreth uint16 = 0xc82

	Seed uint16 = 0x015

	Mvendorid  uint16 = 0xf11
	Marchid    uint16 = 0xf12
	Mimpid     uint16 = 0xf13
	Mhartid    uint16 = 0xf14
	Mconfigptr uint16 = 0xf15
)

// Interrupt cause numbers, shared with the trap package.
const (
	CauseSSIP uint64 = 1
	CauseMSIP uint64 = 3
	CauseSTIP uint64 = 5
	CauseMTIP uint64 = 7
	CauseSEIP uint64 = 9
	CauseMEIP uint64 = 11

	InterruptMask uint64 = 1 << 63
)

// mstatus/sstatus field masks (RV64 layout; RV32 read/write is masked down
// to the low 32 bits by the Bank at access time).
const (
	statusSIE  uint64 = 1 << 1
	statusMIE  uint64 = 1 << 3
	statusSPIE uint64 = 1 << 5
	statusUBE  uint64 = 1 << 6
	statusMPIE uint64 = 1 << 7
	statusSPP  uint64 = 1 << 8
	statusVS   uint64 = 3 << 9
	statusMPP  uint64 = 3 << 11
	statusFS   uint64 = 3 << 13
	statusXS   uint64 = 3 << 15
	statusMPRV uint64 = 1 << 17
	statusSUM  uint64 = 1 << 18
	statusMXR  uint64 = 1 << 19
	statusTVM  uint64 = 1 << 20
	statusTW   uint64 = 1 << 21
	statusTSR  uint64 = 1 << 22
	statusUXL  uint64 = 3 << 32
	statusSXL  uint64 = 3 << 34
	statusSD   uint64 = 1 << 63

	fsOff    uint64 = 0
	fsDirty  uint64 = 3
	fsShift  uint = 13
	vsShift  uint = 9
	xsShift  uint = 15
	mppShift uint = 11
	sppShift uint = 8
	uxlShift uint = 32
	sxlShift uint = 34

	sstatusMask uint64 = statusSIE | statusSPIE | statusSPP | statusFS | statusVS |
		statusXS | statusSUM | statusMXR | statusUXL | statusSD

	// Bits of mie/mip/sie/sip that are visible through the S-mode view.
	sieMask uint64 = (1 << CauseSSIP) | (1 << CauseSTIP) | (1 << CauseSEIP)
)
