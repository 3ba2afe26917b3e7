/*
   trap - Trap and interrupt delivery.

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

// Package trap implements trap() and interrupt delivery (spec section 4.6):
// the delegation walk from MACHINE down to the target privilege, saving
// epc/cause/tval, and the xPP/xPIE/xIE status dance. It depends only on csr,
// not on hart, through the small Target interface below - the same
// decoupling csr.Context and mmu.Context use to avoid an import cycle with
// their callers.
package trap

import "github.com/rvhart/rvsim/csr"

// Target is the minimal hart-side surface trap delivery needs.
type Target interface {
	Privilege() csr.Privilege
	SetPrivilege(csr.Privilege)
	PC() uint64
	SetPC(uint64)
	CSR() *csr.Bank
	ClearWait()
	ExternalInterrupts() uint64
}

// Exception causes not already named in csr (those are interrupt causes).
const (
	CauseInstrMisaligned  uint64 = 0
	CauseInstrAccessFault uint64 = 1
	CauseIllegalInstr     uint64 = 2
	CauseBreakpoint       uint64 = 3
	CauseLoadMisaligned   uint64 = 4
	CauseLoadAccessFault  uint64 = 5
	CauseStoreMisaligned  uint64 = 6
	CauseStoreAccessFault uint64 = 7
	CauseECallFromU       uint64 = 8
	CauseECallFromS       uint64 = 9
	CauseECallFromM       uint64 = 11
	CauseInstrPageFault   uint64 = 12
	CauseLoadPageFault    uint64 = 13
	CauseStorePageFault   uint64 = 15
)

// interruptPriority lists standard interrupt causes from highest to lowest
// priority per the privileged spec's recommended ordering.
var interruptPriority = []uint64{
	csr.CauseMEIP, csr.CauseMSIP, csr.CauseMTIP,
	csr.CauseSEIP, csr.CauseSSIP, csr.CauseSTIP,
}

// Deliver implements trap(hart, cause, tval): walk the delegation chain from
// MACHINE down to find the target privilege, save state, flip status bits,
// and transfer control. isInterrupt selects edeleg vs ideleg and ORs
// csr.InterruptMask into the recorded cause.
func Deliver(t Target, cause uint64, tval uint64, isInterrupt bool) csr.Privilege {
	from := t.Privilege()
	bank := t.CSR()

	target := csr.Machine
	var delegated bool
	if isInterrupt {
		delegated = bank.Ideleg()&(1<<cause) != 0
	} else {
		delegated = bank.Edeleg()&(1<<cause) != 0
	}
	if from != csr.Machine && delegated {
		target = csr.Supervisor
	}
	if target < from {
		target = from
	}

	recordedCause := cause
	if isInterrupt {
		recordedCause |= csr.InterruptMask
	}

	bank.SetEPC(target, t.PC())
	bank.SetCause(target, recordedCause)
	bank.SetTval(target, tval)
	bank.SetPrivilegeTransition(target, from)

	t.SetPrivilege(target)
	t.ClearWait()

	return target
}

// Vector computes the PC the outer run() loop resumes at after Deliver,
// per spec section 4.5's vectored/direct rule.
func Vector(bank *csr.Bank, target csr.Privilege, cause uint64, isInterrupt bool) uint64 {
	tvec := bank.TrapVec(target)
	base := tvec &^ 0x3
	if isInterrupt && tvec&0x1 != 0 {
		return base + 4*cause
	}
	return base
}

// CheckInterrupts implements check_interrupts(): if any pending-and-enabled
// interrupt exists at the hart's current privilege, deliver the
// highest-priority one and return true.
func CheckInterrupts(t Target) bool {
	bank := t.CSR()
	priv := t.Privilege()

	globallyEnabled := false
	switch priv {
	case csr.Machine:
		globallyEnabled = bank.IE(csr.Machine)
	case csr.Supervisor, csr.User:
		// Below M, interrupts that trap to M are always globally enabled.
		// Interrupts delegated to S are gated on sstatus.SIE while the
		// hart is at S; at U they are always enabled.
		globallyEnabled = true
	}

	pending := bank.IP(t.ExternalInterrupts()) & bank.RawIE()
	if pending == 0 {
		return false
	}

	for _, cause := range interruptPriority {
		bit := uint64(1) << cause
		if pending&bit == 0 {
			continue
		}
		// An interrupt delegated to S is only taken at M if the hart is
		// currently in M (delegation never routes control downward from
		// M), gated by mstatus.MIE; at S it is gated by sstatus.SIE.
		delegatedToS := bank.Ideleg()&bit != 0
		enabled := globallyEnabled
		if priv == csr.Supervisor && delegatedToS {
			enabled = bank.IE(csr.Supervisor)
		}
		if priv == csr.Machine && !bank.IE(csr.Machine) {
			enabled = false
		}
		if !enabled {
			continue
		}
		Deliver(t, cause, 0, true)
		return true
	}
	return false
}
