package csr

// readStatus returns the full mstatus value, computing SD from the stored
// FS/VS/XS fields. Per section 9's open question, SD is computed from the
// value being returned (current XS), not the pre-write old value; the spec's
// own source took the old value's XS, which the privileged spec disagrees
// with, so this is a deliberate deviation recorded in DESIGN.md.
func (b *Bank) readStatus() uint64 {
	fs := (b.status & statusFS) >> fsShift
	vs := (b.status & statusVS) >> vsShift
	xs := fs
	if vs > xs {
		xs = vs
	}
	v := (b.status &^ statusXS) | (xs << xsShift)
	if xs == fsDirty {
		v |= statusSD
	} else {
		v &^= statusSD
	}
	return v
}

func (b *Bank) statusTVM() bool {
	return b.status&statusTVM != 0
}

// SUM and MXR expose the two mstatus bits the page walker needs but that are
// not part of any CSR read/write dispatch path.
func (b *Bank) SUM() bool { return b.status&statusSUM != 0 }
func (b *Bank) MXR() bool { return b.status&statusMXR != 0 }

// applyStatus commits a raw mstatus write (already merged with the sstatus
// mask when called through the S-mode alias) and re-validates every
// constrained field per spec section 4.3.
func (b *Bank) applyStatus(ctx Context, old, newVal uint64) {
	if ctx.XLEN() == 64 {
		uxl := (newVal & statusUXL) >> uxlShift
		if uxl != 1 && uxl != 2 {
			newVal = (newVal &^ statusUXL) | (2 << uxlShift)
		}
		sxl := (newVal & statusSXL) >> sxlShift
		if sxl != 1 && sxl != 2 {
			newVal = (newVal &^ statusSXL) | (2 << sxlShift)
		}
	}

	mpp := (newVal & statusMPP) >> mppShift
	if mpp == 2 { // reserved encoding; spec leaves MPP==1 alone deliberately
		newVal &^= statusMPP
	}

	fs := (newVal & statusFS) >> fsShift
	if !ctx.FPUEnabled() {
		fs = fsOff
	} else if fs != fsOff {
		// Precise FS tracking is not modeled; any attempt to leave FS off
		// is promoted straight to dirty, matching a "coarse" FS policy.
		fs = fsDirty
	}
	newVal = (newVal &^ statusFS) | (fs << fsShift)

	// Vector extension state is a non-goal; VS is pinned off.
	newVal &^= statusVS

	b.status = newVal

	// If any of the low four interrupt-enable-ish bits transitioned 0->1,
	// re-check for a pending interrupt at the new enable level.
	const lowFour = statusSIE | statusMIE | statusSPIE | statusMPIE
	if (^old&newVal)&lowFour != 0 {
		ctx.RecheckInterrupts()
	}
}

// SetPrivilegeTransition records the privilege-transition side effects on
// status used by trap delivery: move xIE into xPIE, clear xIE, and stash the
// outgoing privilege into xPP.
func (b *Bank) SetPrivilegeTransition(target Privilege, from Privilege) {
	switch target {
	case Machine:
		mie := b.status&statusMIE != 0
		b.status &^= statusMPIE
		if mie {
			b.status |= statusMPIE
		}
		b.status &^= statusMIE
		b.status = (b.status &^ statusMPP) | (uint64(from) << mppShift)
	case Supervisor:
		sie := b.status&statusSIE != 0
		b.status &^= statusSPIE
		if sie {
			b.status |= statusSPIE
		}
		b.status &^= statusSIE
		spp := uint64(0)
		if from == Supervisor {
			spp = 1
		}
		b.status = (b.status &^ statusSPP) | (spp << sppShift)
	}
}

// PrivilegeField returns the xPP field recorded for target's last trap entry,
// used by xRET to restore the previous privilege.
func (b *Bank) PrivilegeField(target Privilege) Privilege {
	switch target {
	case Machine:
		return Privilege((b.status & statusMPP) >> mppShift)
	case Supervisor:
		if b.status&statusSPP != 0 {
			return Supervisor
		}
		return User
	}
	return User
}

// Return applies xRET's status side effects: xIE <- xPIE, xPIE <- 1, and (for
// MRET) MPP <- U (or M if no U mode), returning the privilege to resume at.
func (b *Bank) Return(ctx Context, from Privilege) Privilege {
	switch from {
	case Machine:
		mpie := b.status&statusMPIE != 0
		b.status &^= statusMIE
		if mpie {
			b.status |= statusMIE
		}
		b.status |= statusMPIE
		target := Privilege((b.status & statusMPP) >> mppShift)
		b.status &^= statusMPP
		return target
	case Supervisor:
		spie := b.status&statusSPIE != 0
		b.status &^= statusSIE
		if spie {
			b.status |= statusSIE
		}
		b.status |= statusSPIE
		target := User
		if b.status&statusSPP != 0 {
			target = Supervisor
		}
		b.status &^= statusSPP
		return target
	}
	_ = ctx
	return User
}

// IE reports whether interrupts are currently enabled for p, used by
// check_interrupts.
func (b *Bank) IE(p Privilege) bool {
	switch p {
	case Machine:
		return b.status&statusMIE != 0
	case Supervisor:
		return b.status&statusSIE != 0
	}
	return false
}
