/*
   csr - Per-hart Control and Status Register bank.

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

// Package csr implements the hart's Control and Status Register file: the
// read-modify-write dispatch of csr_op, the access checks of the privileged
// architecture, and the custom behavioral contracts (mstatus, misa, satp,
// sie/sip, stimecmp, fflags/frm/fcsr) spelled out in spec section 4.3.
//
// The bank never touches hart-global concerns itself (TLB flush, interrupt
// re-check, XLEN switch, FP host state) - those are requested back through
// the Context a caller supplies to Op, which keeps this package free of an
// import cycle with hart.
package csr

import "github.com/rvhart/rvsim/bitops"

// Op is one of the three read-modify-write operations CSRRW/CSRRS/CSRRC (and
// their immediate forms) reduce to.
type Op int

const (
	Swap Op = iota
	SetBits
	ClearBits
)

// Context is the hart-level state and side-effect surface a CSR access may
// need to read or trigger.
type Context interface {
	XLEN() int
	SetXLEN(int)
	Privilege() Privilege
	FlushTLB()
	RecheckInterrupts()
	Time() uint64
	ExternalInterrupts() uint64
	FPUEnabled() bool
	HostFPFlags() uint8
	ClearHostFPFlags()
	SetHostRoundingMode(mode uint8)
	Random16() uint16
	CounterAllowed(index uint) bool // mcounteren/scounteren gate for cycle/time/instret
	SupervisorTimerExt() bool       // Sstc presence
	SupportedMISA() uint64
}

// Bank holds the privileged register file. It is not safe for concurrent
// use by more than one hart; each hart owns exactly one Bank.
type Bank struct {
	trapVec   [4]uint64 // mtvec/stvec indexed by Privilege
	scratch   [4]uint64
	epc       [4]uint64
	cause     [4]uint64
	tval      [4]uint64
	counterEn [4]uint32
	envcfg    [4]uint64

	status  uint64
	ie      uint64
	ip      bitops.Word64
	edeleg  uint64
	ideleg  uint64
	mseccfg uint64
	hartid  uint64
	fcsr    uint32

	satpMode uint8
	satpRoot uint64

	stimecmp    uint64
	stimecmpSet bool
}

// New returns a Bank initialized per spec section 4.3: all registers zero,
// misa reported by SupportedMISA, no delegation.
func New(hartID uint64) *Bank {
	return &Bank{hartid: hartID}
}

// kind classifies how a CSR id is dispatched.
type kind int

const (
	kindUnimplemented kind = iota // read-as-zero, writes ignored
	kindDirect
	kindMasked
	kindConstant
	kindCustom
)

// Op performs a CSR read-modify-write. value is both the operand in and, on
// success, the pre-access value out (the value of the CSR immediately before
// the op). It returns false on any access-check or semantic failure; *value
// is then left unmodified, so a failed op does not report the CSR's prior
// value, and no write is committed (spec section 7: no partial side effects).
func (b *Bank) Op(ctx Context, id uint16, value *uint64, op Op) bool {
	writeVal := *value

	// Access check 1: read-only CSR (top two bits 11) rejects any write.
	// A SWAP always writes; SETBITS/CLEARBITS only write when the supplied
	// mask is non-zero.
	readOnly := (id>>10)&0x3 == 0x3
	isWrite := op == Swap || writeVal != 0
	if readOnly && isWrite {
		return false
	}

	// Access check 2: privilege field of the CSR id exceeds current privilege.
	need := Privilege((id >> 8) & 0x3)
	if need > ctx.Privilege() {
		return false
	}

	old, rk, ok := b.read(ctx, id)
	if !ok {
		return false
	}

	if isWrite {
		var newVal uint64
		switch op {
		case Swap:
			newVal = writeVal
		case SetBits:
			newVal = old | writeVal
		case ClearBits:
			newVal = old &^ writeVal
		}
		if !b.write(ctx, id, rk, old, newVal) {
			return false
		}
	}

	*value = signExtend(ctx, old)
	return true
}
