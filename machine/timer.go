package machine

import (
	"time"

	"github.com/rvhart/rvsim/bitops"
)

// tickInterval is the platform timer's period. Real hardware runs mtime off
// a fixed-frequency oscillator; a host ticker is the idiomatic Go stand-in,
// grounded on the teacher's emu/timer.Timer (a time.Ticker driving a master
// channel on every tick).
const tickInterval = 100 * time.Microsecond

// Timer advances the machine's mtime counter on every tick and posts no
// interrupts itself; each hart compares stimecmp against it through
// csr.Bank.PollTimer in its own hot loop. This generalizes the teacher's
// Timer (which instead posted to a shared master channel on each tick).
type Timer struct {
	m       *Machine
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

func newTimer(m *Machine) *Timer {
	return &Timer{m: m, done: make(chan struct{})}
}

// Start begins the ticker goroutine. Safe to call once; a second call is a
// no-op, matching the teacher's enable-channel gating.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.ticker = time.NewTicker(tickInterval)
	go t.run()
}

// Stop halts the ticker goroutine and waits for it to exit.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.running = false
	close(t.done)
}

func (t *Timer) run() {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			t.m.timeCounter.Add(1, bitops.Relaxed)
		}
	}
}
