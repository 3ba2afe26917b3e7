package csr

import "testing"

// fakeCtx is a minimal Context good enough to drive Bank in isolation.
type fakeCtx struct {
	xlen       int
	priv       Privilege
	flushes    int
	rechecks   int
	timeVal    uint64
	extIRQ     uint64
	fpuEnabled bool
	hostFlags  uint8
	hostRM     uint8
	clearCalls int
	misa       uint64
	sstc       bool
	counterOK  bool
}

func (f *fakeCtx) XLEN() int                  { return f.xlen }
func (f *fakeCtx) SetXLEN(n int)              { f.xlen = n }
func (f *fakeCtx) Privilege() Privilege       { return f.priv }
func (f *fakeCtx) FlushTLB()                  { f.flushes++ }
func (f *fakeCtx) RecheckInterrupts()         { f.rechecks++ }
func (f *fakeCtx) Time() uint64               { return f.timeVal }
func (f *fakeCtx) ExternalInterrupts() uint64 { return f.extIRQ }
func (f *fakeCtx) FPUEnabled() bool           { return f.fpuEnabled }
func (f *fakeCtx) HostFPFlags() uint8         { return f.hostFlags }
func (f *fakeCtx) ClearHostFPFlags()          { f.clearCalls++; f.hostFlags = 0 }
func (f *fakeCtx) SetHostRoundingMode(m uint8) { f.hostRM = m }
func (f *fakeCtx) Random16() uint16           { return 0x1234 }
func (f *fakeCtx) CounterAllowed(uint) bool   { return f.counterOK }
func (f *fakeCtx) SupervisorTimerExt() bool   { return f.sstc }
func (f *fakeCtx) SupportedMISA() uint64      { return f.misa }

func newFakeCtx() *fakeCtx {
	return &fakeCtx{xlen: 64, priv: Machine, fpuEnabled: true, counterOK: true, misa: 1 << 20}
}

func TestOpReadOnlyCSRRejectsWrite(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	v := uint64(1)
	// Mcycle/Minstret live at 0xb00/0xb02, not in the read-only 0xC.. range;
	// use a genuine read-only id instead (top two bits 11, e.g. 0xC00 Cycle).
	if ok := b.Op(ctx, Cycle, &v, Swap); ok {
		t.Fatalf("expected write to read-only CSR to fail")
	}
}

func TestOpPrivilegeCheck(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	ctx.priv = User
	v := uint64(0)
	if ok := b.Op(ctx, Mstatus, &v, Swap); ok {
		t.Fatalf("expected U-mode access to Mstatus to fail")
	}
}

func TestMstatusRoundTrip(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	v := statusMIE
	if !b.Op(ctx, Mstatus, &v, Swap) {
		t.Fatalf("mstatus swap failed")
	}
	if v != 0 {
		t.Fatalf("expected pre-write value 0, got %#x", v)
	}
	v = 0
	if !b.Op(ctx, Mstatus, &v, Swap) {
		t.Fatalf("mstatus read failed")
	}
	if v&statusMIE == 0 {
		t.Fatalf("expected MIE to stick, status=%#x", v)
	}
}

func TestMstatusFSForcedOffWithoutFPU(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	ctx.fpuEnabled = false
	v := uint64(3) << fsShift
	b.Op(ctx, Mstatus, &v, Swap)
	v = 0
	b.Op(ctx, Mstatus, &v, Swap)
	if (v&statusFS)>>fsShift != fsOff {
		t.Fatalf("expected FS forced off, got %#x", v)
	}
}

func TestMstatusFSPromotedToDirty(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	v := uint64(1) << fsShift // "Initial", should be promoted to Dirty (3)
	b.Op(ctx, Mstatus, &v, Swap)
	v = 0
	b.Op(ctx, Mstatus, &v, Swap)
	if (v&statusFS)>>fsShift != fsDirty {
		t.Fatalf("expected FS promoted to dirty, got %#x", (v&statusFS)>>fsShift)
	}
	if v&statusSD == 0 {
		t.Fatalf("expected SD set when FS is dirty")
	}
}

func TestSstatusMasksToSubset(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	mv := statusMIE | statusSIE
	b.Op(ctx, Mstatus, &mv, Swap)
	var sv uint64
	if !b.Op(ctx, Sstatus, &sv, Swap) {
		t.Fatalf("sstatus read failed")
	}
	if sv&statusMIE != 0 {
		t.Fatalf("sstatus view leaked MIE")
	}
}

func TestSatpBareByDefaultAndFlushOnChange(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	v := (uint64(satpSv39) << 60) | 0x1234
	if !b.Op(ctx, Satp, &v, Swap) {
		t.Fatalf("satp write failed")
	}
	if ctx.flushes != 1 {
		t.Fatalf("expected 1 TLB flush, got %d", ctx.flushes)
	}
	if b.SatpMode() != satpSv39 {
		t.Fatalf("expected sv39 mode, got %d", b.SatpMode())
	}
}

func TestSatpBlockedByTVM(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	mv := statusTVM
	b.Op(ctx, Mstatus, &mv, Swap)
	v := uint64(0)
	if ok := b.Op(ctx, Satp, &v, Swap); ok {
		t.Fatalf("expected satp access to fail under TVM")
	}
}

func TestFflagsClearsHostOnNarrow(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	ctx.hostFlags = 0x1f
	v := uint64(0)
	b.Op(ctx, Fflags, &v, Swap)
	if ctx.clearCalls != 1 {
		t.Fatalf("expected host FP flags cleared, got %d calls", ctx.clearCalls)
	}
}

func TestFrmSetsHostRoundingMode(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	v := uint64(rmRTZ)
	b.Op(ctx, Frm, &v, Swap)
	if ctx.hostRM != rmRTZ {
		t.Fatalf("expected host rounding mode %d, got %d", rmRTZ, ctx.hostRM)
	}
}

func TestMisaSwitchesXLEN(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	ctx.xlen = 64
	v := uint64(1) << 62 // hart starts in RV64; MXL=1 here requests RV32
	v = uint64(1) << 62
	b.applyMISA(ctx, v)
	if ctx.xlen != 32 {
		t.Fatalf("expected XLEN switch to 32, got %d", ctx.xlen)
	}
	if ctx.flushes != 1 {
		t.Fatalf("expected TLB flush on XLEN switch, got %d", ctx.flushes)
	}
}

func TestMisaSwitchIsNoOpOnUnsupportedWidth(t *testing.T) {
	b := New(0)
	ctx := newFakeCtx()
	ctx.xlen = 64
	ctx.misa = uint64(2) << 62 // machine built RV64-only
	v := uint64(1) << 62       // request RV32, which this machine does not support
	b.applyMISA(ctx, v)
	if ctx.xlen != 64 {
		t.Fatalf("expected XLEN to stay 64 on unsupported switch, got %d", ctx.xlen)
	}
	if ctx.flushes != 0 {
		t.Fatalf("expected no TLB flush on a no-op misa write, got %d", ctx.flushes)
	}
}

func TestSetClearPending(t *testing.T) {
	b := New(0)
	b.SetPending(CauseMTIP)
	if b.RawIP(&fakeCtx{}) == 0 {
		t.Fatalf("expected MTIP pending")
	}
	b.ClearPending(CauseMTIP)
	if b.RawIP(&fakeCtx{}) != 0 {
		t.Fatalf("expected MTIP cleared")
	}
}
