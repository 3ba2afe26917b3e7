package trap

import (
	"testing"

	"github.com/rvhart/rvsim/csr"
)

// fakeCtx is a minimal csr.Context good enough to write Medeleg/Mideleg
// through Bank.Op in isolation, mirroring csr's own fakeCtx.
type fakeCtx struct {
	priv csr.Privilege
	misa uint64
}

func (f *fakeCtx) XLEN() int                  { return 64 }
func (f *fakeCtx) SetXLEN(int)                {}
func (f *fakeCtx) Privilege() csr.Privilege    { return f.priv }
func (f *fakeCtx) FlushTLB()                  {}
func (f *fakeCtx) RecheckInterrupts()         {}
func (f *fakeCtx) Time() uint64               { return 0 }
func (f *fakeCtx) ExternalInterrupts() uint64 { return 0 }
func (f *fakeCtx) FPUEnabled() bool           { return false }
func (f *fakeCtx) HostFPFlags() uint8         { return 0 }
func (f *fakeCtx) ClearHostFPFlags()          {}
func (f *fakeCtx) SetHostRoundingMode(uint8)  {}
func (f *fakeCtx) Random16() uint16           { return 0 }
func (f *fakeCtx) CounterAllowed(uint) bool   { return true }
func (f *fakeCtx) SupervisorTimerExt() bool   { return false }
func (f *fakeCtx) SupportedMISA() uint64      { return f.misa }

// fakeTarget is a minimal Target backed directly by a csr.Bank, so Deliver
// can be exercised without pulling in the hart package.
type fakeTarget struct {
	priv csr.Privilege
	pc   uint64
	bank *csr.Bank
}

func (t *fakeTarget) Privilege() csr.Privilege     { return t.priv }
func (t *fakeTarget) SetPrivilege(p csr.Privilege) { t.priv = p }
func (t *fakeTarget) PC() uint64                   { return t.pc }
func (t *fakeTarget) SetPC(pc uint64)              { t.pc = pc }
func (t *fakeTarget) CSR() *csr.Bank                { return t.bank }
func (t *fakeTarget) ClearWait()                    {}
func (t *fakeTarget) ExternalInterrupts() uint64    { return 0 }

func TestDeliverDelegatedExceptionFromUserLandsInSupervisor(t *testing.T) {
	bank := csr.New(0)
	ctx := &fakeCtx{priv: csr.Machine}
	medeleg := uint64(1 << CauseECallFromU)
	if !bank.Op(ctx, csr.Medeleg, &medeleg, csr.Swap) {
		t.Fatalf("writing medeleg failed")
	}

	target := &fakeTarget{priv: csr.User, pc: 0x1000, bank: bank}
	got := Deliver(target, CauseECallFromU, 0, false)
	if got != csr.Supervisor {
		t.Fatalf("Deliver landed in %s, want Supervisor", got)
	}
	if target.Privilege() != csr.Supervisor {
		t.Fatalf("target privilege = %s, want Supervisor", target.Privilege())
	}
}

func TestDeliverUndelegatedExceptionFromUserLandsInMachine(t *testing.T) {
	bank := csr.New(0)
	target := &fakeTarget{priv: csr.User, pc: 0x2000, bank: bank}
	got := Deliver(target, CauseIllegalInstr, 0xdead, false)
	if got != csr.Machine {
		t.Fatalf("Deliver landed in %s, want Machine", got)
	}
}

func TestDeliverDelegatedExceptionFromSupervisorStaysInSupervisor(t *testing.T) {
	bank := csr.New(0)
	ctx := &fakeCtx{priv: csr.Machine}
	medeleg := uint64(1 << CauseECallFromS)
	if !bank.Op(ctx, csr.Medeleg, &medeleg, csr.Swap) {
		t.Fatalf("writing medeleg failed")
	}

	target := &fakeTarget{priv: csr.Supervisor, pc: 0x3000, bank: bank}
	got := Deliver(target, CauseECallFromS, 0, false)
	if got != csr.Supervisor {
		t.Fatalf("Deliver landed in %s, want Supervisor", got)
	}
}
