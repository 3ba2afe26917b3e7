/*
   jit - JIT code cache: heap allocation, block registry, inter-block
   linking, and dirty-page invalidation.

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

// Package jit implements the block-level code-cache protocol of spec
// section 4.7: an RWX (or dual-mapped W^X) code heap, a block registry
// mapping physical PC to compiled entry point, a link registry for forward
// references between not-yet-compiled blocks, and the jited/dirty page bit
// matrices that drive self-modifying-code invalidation. This is the
// optional collaborator spec section 2 describes; the interpreter in hart
// runs with or without it wired in.
package jit

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/rvhart/rvsim/spinlock"
)

// flushThreshold is the "more than a threshold (e.g., 64 KiB)" trigger for
// flush_cache releasing the heap's physical backing (spec section 4.7).
const flushThreshold = 64 * 1024

// Heap is the JIT code cache's backing store plus its registries. Mutators
// that touch registries take lock. Lookup tests the dirty page bits with
// lock-free atomic reads, but its read of the block registry also takes
// lock, so a lookup hit is not lock-free (spec section 5).
type Heap struct {
	lock spinlock.Lock

	data []byte // writable view; nil after Release
	code []byte // executable view; == data when rwx is true
	rwx  bool    // true: single RWX mapping; false: two aliased mappings
	size uint64
	curr uint64

	fd int // memfd backing the dual-mapped case; -1 when rwx

	blocks map[uint64]uint64   // phys_pc -> offset into code, valid while present
	links  map[uint64][]uint64 // target phys_pc -> pending patch-site offsets

	jited pageBits
	dirty pageBits

	log *slog.Logger
}

// New allocates a code heap of size bytes. It first attempts a single RWX
// mapping; on EPERM/EACCES (hardened kernels that forbid PROT_EXEC|PROT_WRITE)
// it falls back to a memfd-backed dual mapping, per spec section 4.7's
// "Heap initialization".
func New(size uint64, log *slog.Logger) (*Heap, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Heap{
		size:   size,
		blocks: make(map[uint64]uint64),
		links:  make(map[uint64][]uint64),
		fd:     -1,
		log:    log,
	}

	rwx, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err == nil {
		h.data = rwx
		h.code = rwx
		h.rwx = true
		return h, nil
	}
	h.log.Debug("RWX heap mapping refused, falling back to dual W^X mapping", "error", err)

	fd, err := unix.MemfdCreate("rvsim-jit", 0)
	if err != nil {
		return nil, fmt.Errorf("jit: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("jit: ftruncate: %w", err)
	}

	rw, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("jit: mmap rw alias: %w", err)
	}
	rx, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(rw)
		unix.Close(fd)
		return nil, fmt.Errorf("jit: mmap rx alias: %w", err)
	}

	h.data = rw
	h.code = rx
	h.rwx = false
	h.fd = fd
	return h, nil
}

// Release unmaps the heap. The Heap must not be used afterward.
func (h *Heap) Release() error {
	var firstErr error
	if h.data != nil {
		if err := unix.Munmap(h.data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if !h.rwx && h.code != nil {
		if err := unix.Munmap(h.code); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.fd >= 0 {
		_ = unix.Close(h.fd)
	}
	h.data, h.code = nil, nil
	return firstErr
}

// CodeAddr returns the executable view of the heap starting at offset, the
// bytes a block registered at that offset is entered at.
func (h *Heap) CodeAddr(offset uint64) []byte { return h.code[offset:] }

// remap drops the heap's physical backing, used by FlushCache to shed
// kernel memory usage once the heap has grown past flushThreshold. The RWX
// case unmaps and maps a fresh anonymous region of the same size and
// protection; the dual-mapped case keeps both mappings and truncates the
// memfd to zero and back to full size.
func (h *Heap) remap() error {
	if h.rwx {
		if err := unix.Munmap(h.data); err != nil {
			return fmt.Errorf("jit: remap munmap: %w", err)
		}
		fresh, err := unix.Mmap(-1, 0, int(h.size), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			return fmt.Errorf("jit: remap mmap: %w", err)
		}
		h.data, h.code = fresh, fresh
		return nil
	}

	if err := unix.Ftruncate(h.fd, 0); err != nil {
		return fmt.Errorf("jit: remap ftruncate shrink: %w", err)
	}
	if err := unix.Ftruncate(h.fd, int64(h.size)); err != nil {
		return fmt.Errorf("jit: remap ftruncate grow: %w", err)
	}
	return nil
}

// Emit appends buf to the heap at the current bump cursor and returns the
// offset it was written at, or ok=false if the heap is out of space
// (callers must invoke FlushCache, per spec section 4.7/7's cache-full
// error kind).
func (h *Heap) Emit(buf []byte) (offset uint64, ok bool) {
	if h.curr+uint64(len(buf)) > h.size {
		return 0, false
	}
	offset = h.curr
	copy(h.data[offset:], buf)
	h.curr += uint64(len(buf))
	return offset, true
}
