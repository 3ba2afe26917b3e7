package monitor

import (
	"testing"

	"github.com/rvhart/rvsim/hart"
	"github.com/rvhart/rvsim/machine"
)

type nopExecutor struct{}

func (nopExecutor) Execute(h *hart.Hart, instr uint32, compressed bool) {}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := machine.New(machine.Config{
		HartCount: 1,
		XLEN:      64,
		RAMBase:   0x1000,
		RAMSize:   4096,
	}, nopExecutor{})
	if err != nil {
		t.Fatalf("machine.New: %v", err)
	}
	return New(m)
}

func TestUnambiguousPrefixMatches(t *testing.T) {
	mon := newTestMonitor(t)
	quit, err := mon.Process("reg")
	if err != nil {
		t.Fatalf("Process(reg): %v", err)
	}
	if quit {
		t.Fatalf("registers command should not quit")
	}
}

func TestPrefixShorterThanMinimumIsRejected(t *testing.T) {
	mon := newTestMonitor(t)
	// "s" is shorter than every s-prefixed command's minimum match length
	// (step/stop/setpc all require >=2), so it should match nothing.
	_, err := mon.Process("s")
	if err == nil {
		t.Fatalf("expected command-not-found error for an under-length prefix")
	}
}

func TestQuitCommandReportsExit(t *testing.T) {
	mon := newTestMonitor(t)
	quit, err := mon.Process("quit")
	if err != nil {
		t.Fatalf("Process(quit): %v", err)
	}
	if !quit {
		t.Fatalf("expected quit command to request exit")
	}
}

func TestMemoryCommandReadsMappedAddress(t *testing.T) {
	mon := newTestMonitor(t)
	mon.m.WritePhys(0x1000, []byte{0xde, 0xad, 0xbe, 0xef})
	quit, err := mon.Process("memory 0x1000 4")
	if err != nil {
		t.Fatalf("Process(memory): %v", err)
	}
	if quit {
		t.Fatalf("memory command should not quit")
	}
}

func TestMemoryCommandRejectsUnmappedAddress(t *testing.T) {
	mon := newTestMonitor(t)
	_, err := mon.Process("memory 0xf0000000 4")
	if err == nil {
		t.Fatalf("expected error reading unmapped address")
	}
}
