/*
   mmiobus - MMIO dispatch for physical addresses outside the RAM window.

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

// Package mmiobus dispatches physical accesses outside the RAM window to
// device callbacks, per spec section 6's "MMIO dispatch (host side)". The
// core does not model device registers itself; Device is the external
// collaborator contract, shaped after the teacher's emu/device.Device
// interface but narrowed to the read/write boundary this core actually
// needs (device command/channel semantics are out of scope).
package mmiobus

import (
	"log/slog"
	"sort"
	"sync"
)

// Device is a memory-mapped peripheral. Read/Write operate on a byte window
// relative to the device's own base address; offset is pre-subtracted by
// the Bus.
type Device interface {
	Read(buf []byte, offset uint64) bool
	Write(src []byte, offset uint64) bool
}

type region struct {
	base uint64
	size uint64
	dev  Device
	name string
}

// Bus maps physical address ranges to Device instances. Registration
// happens once at boot; lookups happen on every non-RAM physical access, so
// the region table is kept sorted and searched with a binary search rather
// than the teacher's fixed 256-entry array (this core's physical address
// space is far larger than S/370's 16 MiB).
type Bus struct {
	mu      sync.RWMutex
	regions []region
	log     *slog.Logger
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Register adds a device at [base, base+size). Overlapping registrations
// are rejected.
func (b *Bus) Register(name string, base, size uint64, dev Device) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.regions {
		if base < r.base+r.size && r.base < base+size {
			b.log.Error("mmio region overlap", "new", name, "existing", r.name)
			return false
		}
	}
	b.regions = append(b.regions, region{base: base, size: size, dev: dev, name: name})
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].base < b.regions[j].base })
	return true
}

func (b *Bus) find(pa uint64) (region, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := sort.Search(len(b.regions), func(i int) bool { return b.regions[i].base+b.regions[i].size > pa })
	if i < len(b.regions) && b.regions[i].base <= pa {
		return b.regions[i], true
	}
	return region{}, false
}

// Read/Write dispatch a physical access to the owning device, translating
// pa to a device-relative offset. They report false (access fault) when no
// device claims the address.
func (b *Bus) Read(pa uint64, buf []byte) bool {
	r, ok := b.find(pa)
	if !ok {
		return false
	}
	return r.dev.Read(buf, pa-r.base)
}

func (b *Bus) Write(pa uint64, buf []byte) bool {
	r, ok := b.find(pa)
	if !ok {
		return false
	}
	return r.dev.Write(buf, pa-r.base)
}
