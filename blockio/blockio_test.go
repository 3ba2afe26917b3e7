package blockio

import (
	"path/filepath"
	"testing"
)

func TestOpenCreateReadWriteAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, _, err := Open(path, ReadWrite|Create|Truncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := d.WriteAt([]byte("hello"), 512); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := d.ReadAt(buf, 512); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("ReadAt = %q, want %q", buf, "hello")
	}
}

func TestPositionedAccessDoesNotDisturbCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, _, err := Open(path, ReadWrite|Create|Truncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := d.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	before, err := d.Tell()
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}

	if _, err := d.WriteAt([]byte("Z"), 1024); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	after, err := d.Tell()
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if before != after {
		t.Fatalf("cursor moved from %d to %d after a positioned write", before, after)
	}
}

func TestTruncateAndFallocate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, _, err := Open(path, ReadWrite|Create|Truncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.Truncate(4096); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := d.Fallocate(0, 4096); err != nil {
		t.Logf("Fallocate unsupported on this filesystem: %v", err)
	}
}

func TestOperationsOnClosedDeviceReturnErrNotOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, _, err := Open(path, ReadWrite|Create|Truncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.ReadAt(make([]byte, 1), 0); err != ErrNotOpen {
		t.Fatalf("ReadAt after close = %v, want ErrNotOpen", err)
	}
}
