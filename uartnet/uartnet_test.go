package uartnet

import (
	"net"
	"testing"
	"time"
)

func TestLSRReflectsDataReady(t *testing.T) {
	u := New()
	buf := make([]byte, 1)
	u.Read(buf, regLSR)
	if buf[0]&lsrDataReady != 0 {
		t.Fatalf("expected no data-ready bit before any byte arrives")
	}

	u.deliver('A')
	u.Read(buf, regLSR)
	if buf[0]&lsrDataReady == 0 {
		t.Fatalf("expected data-ready bit set after delivery")
	}
}

func TestRBRReturnsDeliveredByte(t *testing.T) {
	u := New()
	u.deliver('Z')
	buf := make([]byte, 1)
	u.Read(buf, regRBR)
	if buf[0] != 'Z' {
		t.Fatalf("RBR = %q, want 'Z'", buf[0])
	}
}

func TestTHRWriteIsDrainedAsTX(t *testing.T) {
	u := New()
	u.Write([]byte{'X'}, regTHR)
	b, ok := u.drainTX()
	if !ok || b != 'X' {
		t.Fatalf("drainTX = (%q, %v), want ('X', true)", b, ok)
	}
}

func TestOnReceiveCallbackFires(t *testing.T) {
	u := New()
	fired := make(chan struct{}, 1)
	u.OnReceive(func() { fired <- struct{}{} })
	u.deliver('Q')
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected OnReceive callback to fire")
	}
}

func TestServerRelaysBytesIntoUART(t *testing.T) {
	u := New()
	srv, err := Listen("127.0.0.1:0", u, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		buf := make([]byte, 1)
		u.Read(buf, regLSR)
		if buf[0]&lsrDataReady != 0 {
			u.Read(buf, regRBR)
			if buf[0] == 'h' {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected 'h' to arrive at the UART via the TCP connection")
}
