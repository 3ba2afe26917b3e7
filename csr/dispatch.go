package csr

import "github.com/rvhart/rvsim/bitops"

// read returns the CSR's current value before any write, along with the kind
// used to decide how write() must apply a pending store. ok is false when the
// CSR cannot be accessed at all right now (e.g. satp with TVM set).
func (b *Bank) read(ctx Context, id uint16) (value uint64, rk kind, ok bool) {
	switch id {
	case Fflags, Frm, Fcsr:
		if !ctx.FPUEnabled() {
			return 0, kindCustom, false
		}
		b.fcsr |= uint32(ctx.HostFPFlags()) & 0x1f
		switch id {
		case Fflags:
			return uint64(b.fcsr & 0x1f), kindCustom, true
		case Frm:
			return uint64((b.fcsr >> 5) & 0x7), kindCustom, true
		default:
			return uint64(b.fcsr & 0xff), kindCustom, true
		}

	case Sstatus:
		return b.readStatus() & sstatusMask, kindCustom, true
	case Mstatus:
		return b.readStatus(), kindCustom, true
	case Mstatush:
		return (b.readStatus() >> 32) & 0xffffffff, kindDirect, true

	case Misa:
		return b.misa(ctx), kindCustom, true

	case Medeleg:
		return b.edeleg, kindMasked, true
	case Mideleg:
		return b.ideleg, kindMasked, true

	case Mie:
		return b.ie, kindCustom, true
	case Sie:
		return b.ie & sieMask, kindCustom, true
	case Mip:
		return b.ip.Load(bitops.Relaxed) | ctx.ExternalInterrupts(), kindCustom, true
	case Sip:
		return (b.ip.Load(bitops.Relaxed) | ctx.ExternalInterrupts()) & sieMask, kindCustom, true

	case Mtvec:
		return b.trapVec[Machine], kindMasked, true
	case Stvec:
		return b.trapVec[Supervisor], kindMasked, true

	case Mscratch:
		return b.scratch[Machine], kindDirect, true
	case Sscratch:
		return b.scratch[Supervisor], kindDirect, true

	case Mepc:
		return b.epc[Machine], kindMasked, true
	case Sepc:
		return b.epc[Supervisor], kindMasked, true

	case Mcause:
		return b.cause[Machine], kindDirect, true
	case Scause:
		return b.cause[Supervisor], kindDirect, true

	case Mtval:
		return b.tval[Machine], kindDirect, true
	case Stval:
		return b.tval[Supervisor], kindDirect, true

	case Mcounteren:
		return uint64(b.counterEn[Machine]), kindMasked, true
	case Scounteren:
		return uint64(b.counterEn[Supervisor]), kindMasked, true

	case Senvcfg:
		return b.envcfg[Supervisor], kindMasked, true

	case Satp:
		if b.statusTVM() {
			return 0, kindCustom, false
		}
		return b.readSATP(ctx), kindCustom, true

	case Stimecmp:
		return b.stimecmp, kindCustom, true
	case Stimecmph:
		return b.stimecmp >> 32, kindCustom, true

	case Mseccfg:
		return b.mseccfg, kindUnimplemented, true

	case Mhartid:
		return b.hartid, kindConstant, true
	case Mvendorid, Marchid, Mimpid, Mconfigptr:
		return 0, kindConstant, true

	case Seed:
		return uint64(ctx.Random16()), kindCustom, true

	case Time:
		if !ctx.CounterAllowed(1) {
			return 0, kindCustom, false
		}
		return ctx.Time(), kindConstant, true
	case Timeh:
		if !ctx.CounterAllowed(1) {
			return 0, kindCustom, false
		}
		return ctx.Time() >> 32, kindConstant, true

	case Cycle, Instret, Cycleh, Instreth, Mcycle, Minstret, Mcycleh, Minstreth:
		return 0, kindUnimplemented, true

	default:
		if isPMP(id) {
			return 0, kindUnimplemented, true
		}
		return 0, kindUnimplemented, true
	}
}

func isPMP(id uint16) bool {
	return (id >= Pmpcfg0 && id < Pmpcfg0+16) || (id >= Pmpaddr0 && id < Pmpaddr0+64)
}

// write applies newVal to the CSR identified by id, given the value it held
// immediately before (old) and the classification produced by read(). It
// returns false if the write itself is rejected: fflags/frm/fcsr writes
// carrying a reserved rounding mode are vetoed by writeFCSR; every other
// case accepts a write that read() already admitted.
func (b *Bank) write(ctx Context, id uint16, rk kind, old, newVal uint64) bool {
	switch rk {
	case kindUnimplemented:
		return true // writes discarded
	case kindConstant:
		return true // writes discarded (read-only CSRs already rejected above)
	case kindDirect:
		b.writeDirect(ctx, id, newVal)
		return true
	case kindMasked:
		b.writeMasked(ctx, id, newVal)
		return true
	case kindCustom:
		return b.writeCustom(ctx, id, old, newVal)
	}
	return true
}

func (b *Bank) writeDirect(ctx Context, id uint16, v uint64) {
	if ctx.XLEN() == 32 {
		v &= 0xffffffff
	}
	switch id {
	case Mscratch:
		b.scratch[Machine] = v
	case Sscratch:
		b.scratch[Supervisor] = v
	case Mcause:
		b.cause[Machine] = v
	case Scause:
		b.cause[Supervisor] = v
	case Mtval:
		b.tval[Machine] = v
	case Stval:
		b.tval[Supervisor] = v
	case Mstatush:
		b.status = (b.status &^ (uint64(0xffffffff) << 32)) | (v << 32)
	}
}

func (b *Bank) writeMasked(ctx Context, id uint16, v uint64) {
	switch id {
	case Medeleg:
		b.edeleg = v
	case Mideleg:
		b.ideleg = v & 0xffff // only the standard interrupt causes are delegable
	case Mtvec:
		b.trapVec[Machine] = v &^ 2
	case Stvec:
		b.trapVec[Supervisor] = v &^ 2
	case Mepc:
		b.epc[Machine] = v &^ 1
	case Sepc:
		b.epc[Supervisor] = v &^ 1
	case Mcounteren:
		b.counterEn[Machine] = uint32(v)
	case Scounteren:
		b.counterEn[Supervisor] = uint32(v)
	case Senvcfg:
		b.envcfg[Supervisor] = v & 0x1 // only FIOM defined here
	}
	_ = ctx
}

func (b *Bank) writeCustom(ctx Context, id uint16, old, newVal uint64) bool {
	switch id {
	case Fflags:
		return b.writeFCSR(ctx, (b.fcsr &^ 0x1f)|uint32(newVal&0x1f))
	case Frm:
		return b.writeFCSR(ctx, (b.fcsr &^ (0x7 << 5))|(uint32(newVal&0x7)<<5)|(b.fcsr&0x1f))
	case Fcsr:
		return b.writeFCSR(ctx, uint32(newVal&0xff))

	case Sstatus:
		merged := (b.readStatus() &^ sstatusMask) | (newVal & sstatusMask)
		b.applyStatus(ctx, old, merged)
		return true
	case Mstatus:
		b.applyStatus(ctx, old, newVal)
		return true

	case Misa:
		b.applyMISA(ctx, newVal)
		return true

	case Mie:
		b.ie = newVal
		ctx.RecheckInterrupts()
		return true
	case Sie:
		b.ie = (b.ie &^ sieMask) | (newVal & sieMask)
		ctx.RecheckInterrupts()
		return true
	case Mip:
		keep := b.ip.Load(bitops.Relaxed) &^ writableIPMask
		b.ip.Store(keep|(newVal&writableIPMask), bitops.Relaxed)
		ctx.RecheckInterrupts()
		return true
	case Sip:
		keep := b.ip.Load(bitops.Relaxed) &^ (sieMask & writableIPMask)
		b.ip.Store(keep|(newVal&sieMask&writableIPMask), bitops.Relaxed)
		ctx.RecheckInterrupts()
		return true

	case Satp:
		return b.writeSATP(ctx, newVal)

	case Stimecmp:
		b.stimecmp = (b.stimecmp &^ 0xffffffff) | (newVal & 0xffffffff)
		b.applyStimecmp(ctx)
		return true
	case Stimecmph:
		b.stimecmp = (b.stimecmp & 0xffffffff) | (newVal << 32)
		b.applyStimecmp(ctx)
		return true

	case Seed:
		return true // writes ignored; reseeding the host RNG is not modeled
	}
	return true
}

// writableIPMask is the subset of ip bits software may set directly; the
// rest (e.g. *EIP) are driven only by external interrupt sources and are
// OR-ed in at read time instead.
const writableIPMask = (1 << CauseSSIP) | (1 << CauseSTIP) | (1 << CauseMSIP) | (1 << CauseMTIP)

func (b *Bank) applyStimecmp(ctx Context) {
	if !ctx.SupervisorTimerExt() {
		return
	}
	if b.stimecmp <= ctx.Time() {
		b.ip.Or(1<<CauseSTIP, bitops.Relaxed)
	} else {
		b.ip.And(^uint64(1<<CauseSTIP), bitops.Relaxed)
	}
	ctx.RecheckInterrupts()
}

// CounterEnabled reports whether the counter at index (0=cycle, 1=time,
// 2=instret) is visible at priv, per mcounteren/scounteren (spec section
// 4.3's counter-enable masks). Machine mode is never gated.
func (b *Bank) CounterEnabled(index uint, priv Privilege) bool {
	if priv == Machine {
		return true
	}
	bit := uint32(1) << index
	if b.counterEn[Machine]&bit == 0 {
		return false
	}
	if priv == Supervisor {
		return true
	}
	return b.counterEn[Supervisor]&bit != 0
}

// PollTimer re-evaluates STIP against the current time; callers invoke this
// periodically since Time() advances independent of any CSR write.
func (b *Bank) PollTimer(ctx Context) {
	b.applyStimecmp(ctx)
}

// signExtend widens a 32-bit CSR value to the host register width when the
// hart is currently running in RV32.
func signExtend(ctx Context, v uint64) uint64 {
	if ctx.XLEN() != 32 {
		return v
	}
	v &= 0xffffffff
	if v&0x80000000 != 0 {
		v |= 0xffffffff00000000
	}
	return v
}

// TrapVec returns the raw tvec value of a privilege for the outer run loop's
// vectored/direct PC computation (spec section 4.5).
func (b *Bank) TrapVec(p Privilege) uint64 { return b.trapVec[p] }

// SetEPC/Cause/Tval/Status are used by the trap package to record trap entry
// state without going through the generic csr_op access-check path (trap
// delivery is a privileged, always-succeeds internal operation).
func (b *Bank) SetEPC(p Privilege, pc uint64)     { b.epc[p] = pc }
func (b *Bank) SetCause(p Privilege, cause uint64) { b.cause[p] = cause }
func (b *Bank) SetTval(p Privilege, tval uint64)   { b.tval[p] = tval }
func (b *Bank) EPC(p Privilege) uint64             { return b.epc[p] }
func (b *Bank) Cause(p Privilege) uint64           { return b.cause[p] }

func (b *Bank) Edeleg() uint64 { return b.edeleg }
func (b *Bank) Ideleg() uint64 { return b.ideleg }

// IP/RawIE expose the interrupt-pending/enable words for trap delivery's
// check_interrupts without going through the CSR access-check path. IP takes
// the externally-sourced interrupt bits (*EIP) directly so callers that only
// have a trap.Target, not a full Context, can still read pending state.
func (b *Bank) IP(external uint64) uint64 { return b.ip.Load(bitops.Relaxed) | external }
func (b *Bank) RawIP(ctx Context) uint64  { return b.IP(ctx.ExternalInterrupts()) }
func (b *Bank) RawIE() uint64             { return b.ie }

// SetPending/ClearPending implement the external interrupt() entry point
// (spec section 4.6 / 6): set or clear one bit of ip under ACQ_REL ordering.
func (b *Bank) SetPending(cause uint64)   { b.ip.Or(1<<cause, bitops.AcqRel) }
func (b *Bank) ClearPending(cause uint64) { b.ip.And(^uint64(1<<cause), bitops.AcqRel) }
