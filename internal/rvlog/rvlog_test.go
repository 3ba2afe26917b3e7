package rvlog

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestHandleWritesToFile(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	log := slog.New(h)
	log.Info("hart started", "hart", 0)

	if buf.Len() == 0 {
		t.Fatalf("expected log output to file buffer")
	}
}

func TestWithAttrsPreservesConfig(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	withHart := h.WithAttrs([]slog.Attr{slog.Int("hart", 1)})
	log := slog.New(withHart)
	log.Info("trap delivered")

	if !bytes.Contains(buf.Bytes(), []byte("hart=1")) {
		t.Fatalf("expected propagated attr in output, got %q", buf.String())
	}
}
