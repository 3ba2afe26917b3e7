/*
 * rvsim - TCP-backed UART console.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package uartnet exposes a 16550-compatible UART as an mmiobus.Device,
// with its RX/TX streams relayed over a plain TCP (no telnet option
// negotiation) listener instead of a real serial line. It is grounded on
// the teacher's telnet.Server: a net.Listener, a shutdown channel, and a
// goroutine each for accept and per-connection service.
package uartnet

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Register offsets, matching the 16550 byte layout RISC-V platforms
// conventionally expose (e.g. the offsets QEMU's virt machine uses).
const (
	regRBR = 0 // receiver buffer (read)
	regTHR = 0 // transmitter holding (write)
	regIER = 1
	regLSR = 5
)

const (
	lsrDataReady       = 1 << 0
	lsrTransmitterIdle = 1 << 5
	lsrTHREmpty        = 1 << 6
)

// UART is one 16550-shaped register file, backed by byte channels instead
// of a real shift register.
type UART struct {
	mu  sync.Mutex
	rx  chan byte
	tx  chan byte
	ier byte

	onRX func() // notifies the platform to raise the RX-ready interrupt, if wired
}

func New() *UART {
	return &UART{rx: make(chan byte, 256), tx: make(chan byte, 256)}
}

// OnReceive registers a callback invoked whenever a byte is queued for the
// guest to read, so main.go can wire it to machine.Machine.PostInterrupt.
func (u *UART) OnReceive(fn func()) { u.onRX = fn }

func (u *UART) Read(buf []byte, offset uint64) bool {
	if len(buf) != 1 {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	switch offset {
	case regRBR:
		select {
		case b := <-u.rx:
			buf[0] = b
		default:
			buf[0] = 0
		}
	case regLSR:
		lsr := byte(lsrTransmitterIdle | lsrTHREmpty)
		if len(u.rx) > 0 {
			lsr |= lsrDataReady
		}
		buf[0] = lsr
	case regIER:
		buf[0] = u.ier
	default:
		buf[0] = 0
	}
	return true
}

func (u *UART) Write(src []byte, offset uint64) bool {
	if len(src) != 1 {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	switch offset {
	case regTHR:
		select {
		case u.tx <- src[0]:
		default:
		}
	case regIER:
		u.ier = src[0]
	}
	return true
}

// deliver queues a byte received from the network side for the guest to
// read, notifying the platform if wired.
func (u *UART) deliver(b byte) {
	select {
	case u.rx <- b:
	default:
		// drop on a full buffer; real hardware would set an overrun flag
	}
	if u.onRX != nil {
		u.onRX()
	}
}

// drainTX pulls one transmitted byte if any is pending, for the network
// side to forward to the connected client.
func (u *UART) drainTX() (byte, bool) {
	select {
	case b := <-u.tx:
		return b, true
	default:
		return 0, false
	}
}

// Server accepts TCP connections and pipes bytes to/from a UART,
// grounded on the teacher's telnet.Server accept/handle goroutine split.
type Server struct {
	wg       sync.WaitGroup
	listener net.Listener
	shutdown chan struct{}
	uart     *UART
	log      *slog.Logger
}

func Listen(addr string, u *UART, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("uartnet: listen %s: %w", addr, err)
	}
	s := &Server{listener: l, shutdown: make(chan struct{}), uart: u, log: log}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.service(conn)
	}
}

func (s *Server) service(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			for i := 0; i < n; i++ {
				s.uart.deliver(buf[i])
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-done:
			return
		case <-ticker.C:
			for {
				b, ok := s.uart.drainTX()
				if !ok {
					break
				}
				if _, err := conn.Write([]byte{b}); err != nil {
					return
				}
			}
		}
	}
}

// Stop closes the listener and waits for all connection goroutines to
// finish or a one-second grace period to elapse, matching the teacher's
// telnet.Stop.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.log.Warn("timed out waiting for uartnet connections to close")
	}
}

// StdioConsole relays a UART's RX/TX streams directly to the host terminal,
// putting stdin into raw mode for the duration so the guest sees keystrokes
// one at a time rather than line-buffered, exactly as a real serial console
// would. It is the local-terminal counterpart to Server's network relay.
type StdioConsole struct {
	uart     *UART
	state    *term.State
	shutdown chan struct{}
	done     chan struct{}
	log      *slog.Logger
}

// ServeStdio attaches u to the process's stdin/stdout. If stdin is not a
// terminal, raw mode is skipped and bytes are relayed as-is (useful when
// input is piped, e.g. under test automation).
func ServeStdio(u *UART, log *slog.Logger) (*StdioConsole, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &StdioConsole{uart: u, shutdown: make(chan struct{}), done: make(chan struct{}), log: log}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("uartnet: make raw: %w", err)
		}
		c.state = state
	}

	go c.readStdin()
	go c.drainToStdout()
	return c, nil
}

func (c *StdioConsole) readStdin() {
	buf := make([]byte, 64)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			c.uart.deliver(buf[i])
		}
	}
}

func (c *StdioConsole) drainToStdout() {
	defer close(c.done)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			for {
				b, ok := c.uart.drainTX()
				if !ok {
					break
				}
				os.Stdout.Write([]byte{b})
			}
		}
	}
}

// Stop restores the terminal's original mode, if it was changed.
func (c *StdioConsole) Stop() {
	close(c.shutdown)
	<-c.done
	if c.state != nil {
		if err := term.Restore(int(os.Stdin.Fd()), c.state); err != nil {
			c.log.Warn("restoring terminal state", "error", err)
		}
	}
}
