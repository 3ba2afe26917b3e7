/*
   mmu - Virtual-to-physical address translation: TLB plus software page walker.

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

// Package mmu implements the hart's address translation: a small direct-
// mapped TLB fronting a software page-table walker for Sv32/Sv39/Sv48/Sv57,
// per spec section 4.4. It holds no reference to the owning hart; instead it
// is driven through the Context and Mem interfaces, the same pattern csr
// uses to stay free of an import cycle.
package mmu

import "github.com/rvhart/rvsim/csr"

// Access identifies the kind of reference being translated.
type Access uint8

const (
	Read Access = 1 << iota
	Write
	Exec
)

// Mode is the satp paging mode, using the architectural encoding so a raw
// csr.Bank.SatpMode() value can be passed through unconverted.
type Mode uint8

const (
	Bare Mode = 0
	Sv32 Mode = 1
	Sv39 Mode = 8
	Sv48 Mode = 9
	Sv57 Mode = 10
)

// pageShift and pageMask are fixed at 4 KiB pages for every supported mode.
const (
	pageShift = 12
	pageSize  = 1 << pageShift
	pageMask  = pageSize - 1
)

// Context supplies the translation-relevant hart state the walker and
// permission check need but does not own.
type Context interface {
	Privilege() csr.Privilege
	SUM() bool // mstatus.SUM: supervisor access to U-mode pages permitted
	MXR() bool // mstatus.MXR: executable pages are also readable
}

// Mem is the physical-memory backend the walker reads page-table entries
// from and writes accessed/dirty bits back to; it is implemented by the
// machine package's RAM.
type Mem interface {
	// ReadPTE returns the raw page-table entry at physical address pa. wide
	// selects an 8-byte entry (Sv39/48/57) versus a 4-byte one (Sv32).
	ReadPTE(pa uint64, wide bool) (uint64, bool)
	// WritePTE stores val back at pa, used only to set the A/D bits.
	WritePTE(pa uint64, val uint64, wide bool) bool
	// Page returns the host-backed byte slice for the 4 KiB physical page
	// ppn, for the TLB to hand straight to the interpreter on a hit.
	Page(ppn uint64) ([]byte, bool)
}

// Fault is returned by TLB.Walk on a walk failure. It records the access kind
// and faulting virtual address; the caller (hart) maps the access kind to one
// of the trap.Cause*PageFault values for its trap() call.
type Fault struct {
	Access Access
	Vaddr  uint64
}

func (f *Fault) Error() string { return "page fault" }
