/*
 * rvsim - Interactive monitor console.
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

// Package monitor implements the operator console: a prefix-matched command
// table dispatched over a liner-backed REPL, grounded on the teacher's
// command/parser (cmdList + prefix matching) and command/reader (the
// liner.NewLiner Prompt loop).
package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/rvhart/rvsim/internal/hexfmt"
	"github.com/rvhart/rvsim/machine"
)

type cmdLine struct {
	line string
	pos  int
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && l.line[l.pos] == ' ' {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool { return l.pos >= len(l.line) }

func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.line) && l.line[l.pos] != ' ' {
		l.pos++
	}
	return l.line[start:l.pos]
}

type command struct {
	name    string
	min     int
	process func(*cmdLine, *Monitor) (bool, error)
}

var cmdList = []command{
	{name: "continue", min: 1, process: cmdContinue},
	{name: "step", min: 2, process: cmdStep},
	{name: "stop", min: 3, process: cmdStop},
	{name: "registers", min: 3, process: cmdRegisters},
	{name: "memory", min: 3, process: cmdMemory},
	{name: "setpc", min: 3, process: cmdSetPC},
	{name: "quit", min: 1, process: cmdQuit},
	{name: "help", min: 1, process: cmdHelp},
}

func matchCommand(c command, word string) bool {
	if len(word) > len(c.name) {
		return false
	}
	for i := range word {
		if word[i] != c.name[i] {
			return false
		}
	}
	return len(word) >= c.min
}

func matchList(word string) []command {
	if word == "" {
		return nil
	}
	var out []command
	for _, c := range cmdList {
		if matchCommand(c, word) {
			out = append(out, c)
		}
	}
	return out
}

// Monitor is the console's state: the machine it inspects/controls, plus
// the currently selected hart index for register/step commands.
type Monitor struct {
	m     *machine.Machine
	hart  int
	out   func(string)
	errFn func(string)
}

// New builds a Monitor over m, printing to stdout by default.
func New(m *machine.Machine) *Monitor {
	return &Monitor{
		m:     m,
		out:   func(s string) { fmt.Println(s) },
		errFn: func(s string) { fmt.Println("Error: " + s) },
	}
}

// Process executes a single command line, reporting whether the console
// should exit.
func (mon *Monitor) Process(line string) (bool, error) {
	l := &cmdLine{line: line}
	word := l.getWord()
	if word == "" {
		return false, nil
	}
	match := matchList(word)
	if len(match) == 0 {
		return false, errors.New("command not found: " + word)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + word)
	}
	return match[0].process(l, mon)
}

// Run starts the liner-backed REPL, grounded on the teacher's
// command/reader.ConsoleReader.
func Run(m *machine.Machine) {
	mon := New(m)
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		cmdStr, err := line.Prompt("rvsim> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			mon.errFn(err.Error())
			return
		}
		line.AppendHistory(cmdStr)
		quit, err := mon.Process(cmdStr)
		if err != nil {
			mon.errFn(err.Error())
		}
		if quit {
			return
		}
	}
}

func cmdContinue(_ *cmdLine, mon *Monitor) (bool, error) {
	mon.m.Start()
	mon.out("running")
	return false, nil
}

func cmdStop(_ *cmdLine, mon *Monitor) (bool, error) {
	mon.m.Stop()
	mon.out("stopped")
	return false, nil
}

func cmdStep(l *cmdLine, mon *Monitor) (bool, error) {
	harts := mon.m.Harts()
	if mon.hart >= len(harts) {
		return false, errors.New("no such hart")
	}
	_ = l
	mon.out(fmt.Sprintf("hart %d single-step is driven by the Executor under test; use continue/stop for free run", mon.hart))
	return false, nil
}

func cmdRegisters(_ *cmdLine, mon *Monitor) (bool, error) {
	harts := mon.m.Harts()
	if mon.hart >= len(harts) {
		return false, errors.New("no such hart")
	}
	h := harts[mon.hart]
	var sb strings.Builder
	fmt.Fprintf(&sb, "pc=%016x priv=%s", h.PC(), h.Privilege())
	mon.out(sb.String())
	return false, nil
}

func cmdMemory(l *cmdLine, mon *Monitor) (bool, error) {
	addrWord := l.getWord()
	lenWord := l.getWord()
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrWord, "0x"), 16, 64)
	if err != nil {
		return false, fmt.Errorf("bad address %q: %w", addrWord, err)
	}
	n := uint64(16)
	if lenWord != "" {
		n, err = strconv.ParseUint(lenWord, 10, 32)
		if err != nil {
			return false, fmt.Errorf("bad length %q: %w", lenWord, err)
		}
	}
	buf := make([]byte, n)
	if !mon.m.ReadPhys(addr, buf) {
		return false, fmt.Errorf("physical address %#x is not mapped", addr)
	}
	mon.out(strings.TrimRight(hexfmt.Dump(addr, buf), "\n"))
	return false, nil
}

func cmdSetPC(l *cmdLine, mon *Monitor) (bool, error) {
	harts := mon.m.Harts()
	if mon.hart >= len(harts) {
		return false, errors.New("no such hart")
	}
	word := l.getWord()
	pc, err := strconv.ParseUint(strings.TrimPrefix(word, "0x"), 16, 64)
	if err != nil {
		return false, fmt.Errorf("bad pc %q: %w", word, err)
	}
	harts[mon.hart].SetPC(pc)
	return false, nil
}

func cmdQuit(_ *cmdLine, _ *Monitor) (bool, error) {
	return true, nil
}

func cmdHelp(_ *cmdLine, mon *Monitor) (bool, error) {
	names := make([]string, len(cmdList))
	for i, c := range cmdList {
		names[i] = c.name
	}
	mon.out(strings.Join(names, " "))
	return false, nil
}
