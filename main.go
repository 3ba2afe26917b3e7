/*
 * rvsim - Main process.
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

package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"unicode"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rvhart/rvsim/csr"
	"github.com/rvhart/rvsim/hart"
	"github.com/rvhart/rvsim/internal/rvlog"
	"github.com/rvhart/rvsim/machine"
	"github.com/rvhart/rvsim/monitor"
	"github.com/rvhart/rvsim/uartnet"
)

var logger *slog.Logger

func main() {
	optBootrom := getopt.StringLong("bootrom", 'b', "", "Boot ROM image to load at the reset vector (default positional argument)")
	optDTB := getopt.StringLong("dtb", 'd', "", "Device tree blob to place in RAM for the guest to find")
	optImage := getopt.StringLong("image", 'i', "", "Kernel or disk image to load after the boot ROM")
	optMemSize := getopt.StringLong("mem", 'm', "128M", "Physical memory size (suffix K/M/G)")
	optSMP := getopt.StringLong("smp", 'n', "1", "Number of harts (<= 1024)")
	optRV64 := getopt.BoolLong("rv64", '6', "Run harts in RV64 instead of RV32")
	optJIT := getopt.BoolLong("jit", 'j', "Enable the JIT code cache")
	optUARTAddr := getopt.StringLong("uart", 'u', "", "host:port to serve the console UART on (empty disables)")
	optConsole := getopt.BoolLong("console", 'c', "Attach the console UART to this terminal in raw mode")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optVerbose := getopt.BoolLong("verbose", 'v', "Verbose logging")
	optMonitor := getopt.BoolLong("monitor", 'M', "Start the interactive operator console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	bootrom := *optBootrom
	if bootrom == "" {
		if args := getopt.Args(); len(args) > 0 {
			bootrom = args[0]
		}
	}

	var logFile *os.File
	if *optLogFile != "" {
		var err error
		logFile, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("creating log file", "error", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	logger = slog.New(rvlog.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel}, *optVerbose))
	slog.SetDefault(logger)

	memSize, err := parseMemSize(*optMemSize)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	hartCount, err := strconv.ParseUint(*optSMP, 10, 16)
	if err != nil || hartCount == 0 || hartCount > 1024 {
		logger.Error("invalid hart count (must be 1-1024)", "smp", *optSMP)
		os.Exit(1)
	}

	xlen := 32
	if *optRV64 {
		xlen = 64
	}

	const ramBase = 0x8000_0000
	const imageOffset = 0x20_0000 // conventional kernel load offset past the boot ROM
	const dtbOffset = 0x2F0_0000  // conventional device-tree placement near the end of a small RAM window

	m, err := machine.New(machine.Config{
		HartCount:       hartCount,
		XLEN:            xlen,
		RAMBase:         ramBase,
		RAMSize:         memSize,
		SupportedMISA:   defaultMISA(xlen),
		SupervisorTimer: true,
		FPUPresent:      true,
		EnableJIT:       *optJIT,
		JITHeapSize:     16 * 1024 * 1024,
		Log:             logger.With("component", "machine"),
	}, illegalInstrExecutor{})
	if err != nil {
		logger.Error("constructing machine", "error", err)
		os.Exit(1)
	}

	if bootrom != "" {
		data, err := os.ReadFile(bootrom)
		if err != nil {
			logger.Error("reading boot rom", "error", err)
			os.Exit(1)
		}
		if !m.Load(ramBase, data) {
			logger.Error("boot rom does not fit in RAM", "size", len(data))
			os.Exit(1)
		}
	}

	if *optImage != "" {
		data, err := os.ReadFile(*optImage)
		if err != nil {
			logger.Error("reading image", "error", err)
			os.Exit(1)
		}
		if !m.Load(ramBase+imageOffset, data) {
			logger.Error("image does not fit in RAM", "size", len(data))
			os.Exit(1)
		}
	}

	if *optDTB != "" {
		// DTB parsing itself is an external collaborator outside this core's
		// scope; this only places the blob in guest-visible RAM for firmware
		// or kernel code to locate and parse on its own.
		data, err := os.ReadFile(*optDTB)
		if err != nil {
			logger.Error("reading dtb", "error", err)
			os.Exit(1)
		}
		if !m.Load(ramBase+dtbOffset, data) {
			logger.Error("dtb does not fit in RAM", "size", len(data))
			os.Exit(1)
		}
	}

	var uartServer *uartnet.Server
	var console *uartnet.StdioConsole
	if *optUARTAddr != "" || *optConsole {
		u := uartnet.New()
		m.Bus().Register("uart0", 0x1000_0000, 0x100, u)
		u.OnReceive(func() {
			for h := uint64(0); h < hartCount; h++ {
				m.PostInterrupt(h, csr.CauseSEIP)
			}
		})
		if *optUARTAddr != "" {
			uartServer, err = uartnet.Listen(*optUARTAddr, u, logger.With("component", "uart"))
			if err != nil {
				logger.Error("starting uart listener", "error", err)
				os.Exit(1)
			}
			logger.Info("uart console listening", "addr", uartServer.Addr().String())
		}
		if *optConsole {
			console, err = uartnet.ServeStdio(u, logger.With("component", "console"))
			if err != nil {
				logger.Error("attaching stdio console", "error", err)
				os.Exit(1)
			}
		}
	}

	m.Start()
	logger.Info("machine started", "harts", hartCount, "xlen", xlen, "mem", memSize)

	if *optMonitor {
		monitor.Run(m)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	m.Stop()
	if uartServer != nil {
		uartServer.Stop()
	}
	if console != nil {
		console.Stop()
	}
}

// parseMemSize parses a decimal byte count with an optional K/M/G suffix,
// grounded on the teacher's cpu.setMemSize digit-and-multiplier scan.
func parseMemSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty memory size")
	}
	var size uint64
	multiplier := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !unicode.IsDigit(rune(c)) {
			if i == len(s)-1 {
				multiplier = c
				break
			}
			return 0, errors.New("memory size is not a number: " + s)
		}
		size = size*10 + uint64(c-'0')
	}
	switch multiplier {
	case 'k', 'K':
		size *= 1024
	case 'm', 'M':
		size *= 1024 * 1024
	case 'g', 'G':
		size *= 1024 * 1024 * 1024
	case 0:
	default:
		return 0, errors.New("invalid size multiplier: " + string(multiplier))
	}
	if size < 4096 {
		size = 4096
	}
	return size, nil
}

// defaultMISA reports the base ISA letters this build exposes: I, M, A, F,
// D, C, S, U. The opcode decoder tables (an external collaborator, see
// hart.Executor) ultimately decide which of these are really implemented;
// this only advertises capability to guest software reading misa.
func defaultMISA(xlen int) uint64 {
	const extensions = 1<<('I'-'A') | 1<<('M'-'A') | 1<<('A'-'A') | 1<<('F'-'A') |
		1<<('D'-'A') | 1<<('C'-'A') | 1<<('S'-'A') | 1<<('U'-'A')
	mxl := uint64(1)
	if xlen == 64 {
		mxl = 2
	}
	return mxl<<62 | extensions
}

// illegalInstrExecutor satisfies hart.Executor until the opcode decoder
// tables (an external collaborator outside this core's scope) are wired
// in; it traps every instruction as illegal rather than silently hanging
// in a fetch-execute loop that never advances.
type illegalInstrExecutor struct{}

const causeIllegalInstr = 2

func (illegalInstrExecutor) Execute(h *hart.Hart, instr uint32, compressed bool) {
	h.Trap(causeIllegalInstr, uint64(instr))
}
