/*
   hart - Per-hart register file and fetch/decode/execute loop.

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

// Package hart implements the hart state machine of spec section 3 and its
// fetch/decode/execute loop of section 4.5: 32 integer registers plus PC,
// the XLEN flag, current privilege, a csr.Bank, an mmu.TLB, and the
// wait_event suspension flag. Instruction semantics themselves (the opcode
// tables) are an external collaborator per spec section 1's scope note;
// Executor is that collaborator's contract.
package hart

import (
	"log/slog"

	"github.com/rvhart/rvsim/csr"
	"github.com/rvhart/rvsim/mmu"
	"github.com/rvhart/rvsim/trap"
)

// Access kinds ReadMem/WriteMem and the internal fetch path hand to the MMU.
const (
	instrAccess = mmu.Exec
	loadAccess  = mmu.Read
	storeAccess = mmu.Write
)

// Machine is the global state a hart reaches out to: physical memory, the
// monotonic timer, per-hart external interrupt lines, and machine-wide
// capability flags. Implemented by the machine package.
type Machine interface {
	ReadPhys(pa uint64, buf []byte) bool
	WritePhys(pa uint64, buf []byte) bool
	Mem() mmu.Mem
	Time() uint64
	ExternalInterrupts(hartID uint64) uint64
	SupportedMISA() uint64
	SupervisorTimerExt() bool
	FPUPresent() bool
	Random16() uint16
}

// Executor decodes and executes one instruction. It is the external
// collaborator spec section 1 carves out of scope ("the arithmetic opcode
// decoder tables themselves").
type Executor interface {
	Execute(h *Hart, instr uint32, compressed bool)
}

// Hart is one RISC-V hardware thread.
type Hart struct {
	ID uint64

	x  [32]uint64
	pc uint64

	xlen int
	priv csr.Privilege

	CSRBank *csr.Bank
	TLB     mmu.TLB

	waitEvent bool
	shutdown  bool

	hostFPFlags uint8
	hostRM      uint8

	m    Machine
	exec Executor

	log *slog.Logger
}

// New creates a hart at the given id, initially in Machine mode with an
// empty register file and TLB, per spec section 3's lifecycle note.
func New(id uint64, xlen int, m Machine, exec Executor, log *slog.Logger) *Hart {
	if log == nil {
		log = slog.Default()
	}
	return &Hart{
		ID:      id,
		xlen:    xlen,
		priv:    csr.Machine,
		CSRBank: csr.New(id),
		m:       m,
		exec:    exec,
		log:     log.With("hart", id),
	}
}

// Reg reads integer register i; register 0 always reads as zero.
func (h *Hart) Reg(i int) uint64 {
	if i == 0 {
		return 0
	}
	return h.x[i]
}

// SetReg writes integer register i; writes to register 0 are discarded.
func (h *Hart) SetReg(i int, v uint64) {
	if i == 0 {
		return
	}
	if h.xlen == 32 {
		v &= 0xffffffff
	}
	h.x[i] = v
}

func (h *Hart) PC() uint64     { return h.pc }
func (h *Hart) SetPC(pc uint64) {
	if h.xlen == 32 {
		pc &= 0xffffffff
	}
	h.pc = pc
}

func (h *Hart) Privilege() csr.Privilege      { return h.priv }
func (h *Hart) SetPrivilege(p csr.Privilege)  { h.priv = p }
func (h *Hart) CSR() *csr.Bank                { return h.CSRBank }
func (h *Hart) ClearWait()                    { h.waitEvent = false }

// Shutdown requests the run loop exit at the next hot-loop boundary.
func (h *Hart) Shutdown() { h.shutdown = true; h.waitEvent = false }

// --- csr.Context ---

func (h *Hart) XLEN() int      { return h.xlen }
func (h *Hart) SetXLEN(n int)  { h.xlen = n }
func (h *Hart) FlushTLB()      { h.TLB.Flush() }
func (h *Hart) RecheckInterrupts() {
	h.waitEvent = false
}
func (h *Hart) Time() uint64                 { return h.m.Time() }
func (h *Hart) ExternalInterrupts() uint64   { return h.m.ExternalInterrupts(h.ID) }
func (h *Hart) FPUEnabled() bool             { return h.m.FPUPresent() }
func (h *Hart) HostFPFlags() uint8           { return h.hostFPFlags }
func (h *Hart) ClearHostFPFlags()            { h.hostFPFlags = 0 }
func (h *Hart) SetHostRoundingMode(mode uint8) { h.hostRM = mode }
func (h *Hart) Random16() uint16             { return h.m.Random16() }
func (h *Hart) CounterAllowed(index uint) bool {
	return h.CSRBank.CounterEnabled(index, h.priv)
}
func (h *Hart) SupervisorTimerExt() bool { return h.m.SupervisorTimerExt() }
func (h *Hart) SupportedMISA() uint64    { return h.m.SupportedMISA() }

// --- mmu.Context ---

func (h *Hart) SUM() bool { return h.CSRBank.SUM() }
func (h *Hart) MXR() bool { return h.CSRBank.MXR() }

// Trap delivers a synchronous exception: save state, transfer privilege,
// and set PC per the outer loop's vector rule (spec section 4.6).
func (h *Hart) Trap(cause uint64, tval uint64) {
	target := trap.Deliver(h, cause, tval, false)
	h.pc = trap.Vector(h.CSRBank, target, cause, false)
}

// ReadMem/WriteMem translate and access guest memory for the Executor,
// combining the TLB fast path with the page-walker miss path (spec section
// 4.4's tlb_check / mmu_op split) and raising a page fault trap on failure.
func (h *Hart) ReadMem(vaddr uint64, buf []byte) bool {
	return h.access(vaddr, buf, loadAccess, false)
}

func (h *Hart) WriteMem(vaddr uint64, buf []byte) bool {
	return h.access(vaddr, buf, storeAccess, true)
}

func (h *Hart) access(vaddr uint64, buf []byte, access mmu.Access, write bool) bool {
	size := uint64(len(buf))
	pa, ok := h.TLB.Check(vaddr, size, h.priv, access)
	if !ok {
		mode := mmu.Mode(h.CSRBank.SatpMode())
		if h.priv == csr.Machine {
			mode = mmu.Bare
		}
		var fault *mmu.Fault
		pa, fault = h.TLB.Walk(h, h.m.Mem(), mode, h.CSRBank.SatpRoot(), vaddr, access)
		if fault != nil {
			cause := trap.CauseLoadPageFault
			if write {
				cause = trap.CauseStorePageFault
			}
			if access == instrAccess {
				cause = trap.CauseInstrPageFault
			}
			h.Trap(cause, vaddr)
			return false
		}
	}
	if write {
		return h.m.WritePhys(pa, buf)
	}
	return h.m.ReadPhys(pa, buf)
}

// fetch reads size bytes at vaddr, taking the TLB fast path when the access
// does not cross a page boundary, else falling back to the walker (spec
// section 4.5 steps 2-3).
func (h *Hart) fetch(vaddr uint64, size int) (uint32, bool) {
	buf := make([]byte, size)
	if !h.access(vaddr, buf, instrAccess, false) {
		return 0, false
	}
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(buf[i]) << (8 * i)
	}
	return v, true
}

// Run is the outer loop of spec section 4.5: forever alternate between the
// hot loop and trap-vector PC computation, until Shutdown is called.
func (h *Hart) Run() {
	for !h.shutdown {
		h.waitEvent = true
		h.hotLoop()
		if h.shutdown {
			return
		}
		target := h.priv
		raw := h.CSRBank.Cause(target)
		isInterrupt := raw&csr.InterruptMask != 0
		cause := raw &^ csr.InterruptMask
		h.pc = trap.Vector(h.CSRBank, target, cause, isInterrupt)
	}
}

// hotLoop is spec section 4.5's per-instruction loop: zero register 0 (a
// read-time invariant here, so there is nothing to actively clear), fetch,
// decode the instruction length from the low two bits, execute, advance PC.
func (h *Hart) hotLoop() {
	for h.waitEvent {
		if trap.CheckInterrupts(h) {
			return
		}
		h.CSRBank.PollTimer(h)

		low16, ok := h.fetch(h.pc, 2)
		if !ok {
			return
		}
		if low16&0x3 == 0x3 {
			hi16, ok := h.fetch(h.pc+2, 2)
			if !ok {
				return
			}
			instr := low16 | (hi16 << 16)
			h.exec.Execute(h, instr, false)
			if !h.waitEvent {
				return
			}
			h.SetPC(h.pc + 4)
		} else {
			h.exec.Execute(h, low16, true)
			if !h.waitEvent {
				return
			}
			h.SetPC(h.pc + 2)
		}
	}
}
