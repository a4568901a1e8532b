/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package debug implements the kernel's SIGUSR1 diagnostic dump: a
// goroutine stack trace, a heap profile, a CPU profile, and — beyond what
// every gravwell ingester's main() installs this for — a process-table
// dump (ps-style introspection, spec.md §4.7), so a stuck kernel can be
// inspected without attaching a debugger.
package debug

import (
	"bytes"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"
)

const (
	CPU_SLEEP      = 10 * time.Second
	MAX_STACK_SIZE = 256 * 1024 * 1024
)

// PsDumper writes a ps()-style process-table snapshot to w. The kernel
// package implements this over its process table.
type PsDumper interface {
	DumpPs(w io.Writer) error
}

// LogDumper additionally writes a dump keyed by a directory. A PsDumper
// that also implements this gets it invoked alongside the stack trace,
// profiles, and ps dump. The kernel package implements this over its
// global syscall invocation log.
type LogDumper interface {
	DumpInvocationLogFile(dir string) (string, error)
}

// HandleDebugSignals is a SIGUSR1 trap installed at startup to generate a
// stack trace, memory profile, CPU profile, and (if dumper is non-nil) a
// process-table dump. It takes a name to be used as a directory prefix,
// and creates files in the system temporary directory.
func HandleDebugSignals(name string, dumper PsDumper) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGUSR1)

	for range c {
		dir, err := os.MkdirTemp("", name)
		if err != nil {
			continue
		}
		DumpDebugFiles(dir, dumper)
	}
}

// DumpDebugFiles generates a stacktrace, memory profile, CPU profile, and
// (if dumper is non-nil) a process-table dump into the provided
// directory.
func DumpDebugFiles(dir string, dumper PsDumper) {
	generateStackTrace(dir)
	generateMemoryProfile(dir)
	generateCPUProfile(dir)
	if dumper != nil {
		generatePsDump(dir, dumper)
		if ld, ok := dumper.(LogDumper); ok {
			ld.DumpInvocationLogFile(dir)
		}
	}
}

func generatePsDump(dir string, dumper PsDumper) {
	name := filepath.Join(dir, "ps.txt")
	f, err := os.Create(name)
	if err != nil {
		return
	}
	defer f.Close()
	dumper.DumpPs(f)
}

func generateStackTrace(dir string) {
	stackTraceName := filepath.Join(dir, "stack")
	st, err := os.Create(stackTraceName)
	if err != nil {
		return
	}
	defer st.Close()

	// return a trace, growing the buffer until it's big enough
	size := 1024 * 1024
	var buf []byte
	var n int
	for {
		buf = make([]byte, size)
		n = runtime.Stack(buf, true)
		if n < size {
			break
		}
		size *= 2
		if size >= MAX_STACK_SIZE {
			return
		}
	}
	st.Write(buf[:n])
}

func generateMemoryProfile(dir string) {
	memName := filepath.Join(dir, "mem.prof")
	mem, err := os.Create(memName)
	if err != nil {
		return
	}
	defer mem.Close()

	membuf := &bytes.Buffer{}
	runtime.GC()
	if err := pprof.WriteHeapProfile(membuf); err == nil {
		mem.Write(membuf.Bytes())
	}
}

func generateCPUProfile(dir string) {
	cpuName := filepath.Join(dir, "cpu.prof")
	cpu, err := os.Create(cpuName)
	if err != nil {
		return
	}
	defer cpu.Close()

	cpubuf := &bytes.Buffer{}
	if err := pprof.StartCPUProfile(cpubuf); err == nil {
		time.Sleep(CPU_SLEEP)
		pprof.StopCPUProfile()
		cpu.Write(cpubuf.Bytes())
	}
}
