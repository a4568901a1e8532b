/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package proc implements the process table: process control blocks, the
// allocate/fork/exit/wait lifecycle, sleep/wakeup, and introspection
// (ps, chpr, chtickets, chmfq). Grounded on original_source/proc.c and
// defs.h's struct proc fields, reframed per spec.md §9's guidance to make
// the process table an explicit object rather than a file-scope global,
// and every simulated-CPU identity an explicit parameter rather than an
// implicit mycpu() lookup.
package proc

import (
	"time"

	"github.com/AliEdalat/os-lab-5/lock"
)

// State mirrors proc.c's enum procstate.
type State int

const (
	Unused State = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Embryo:
		return "EMBRYO"
	case Sleeping:
		return "SLEEPING"
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// MaxNameLen bounds Process.Name, mirroring proc.c's name[16].
const MaxNameLen = 16

// Body is the simulated workload a process runs once scheduled. It is
// handed p and the identity of the CPU currently running it and returns
// once the process wants to exit. A Body that wants to sleep or touch a
// shared resource calls back into p's Table (via p.Table()) exactly the
// way real syscall handlers would. init's Body must never return: the
// table panics ("proc: init process exited") if init finishes.
type Body func(p *Process, c *lock.CPU)

// Process is one process-table slot: the control-block fields proc.c
// keeps on struct proc, minus the fields (kstack, pgdir, trapframe,
// context) that only make sense against real memory and a real trap
// path — those are replaced by Body, the goroutine this slot runs on,
// and the wake channel used by Sleep/Wakeup. Sz is kept, unlike those:
// it is plain bookkeeping a growproc(n) call updates (Table.GrowProc),
// with no page directory for it to require reinstalling here.
type Process struct {
	Pid         int
	ParentPid   int
	Name        string
	State       State
	Priority    int // level-3 MFQ priority; lower runs first
	MFQLevel    int // 1..3, which MFQ level this process currently occupies
	Tickets     int // level-1 lottery tickets
	Sz          int // current user memory extent, bytes; see Table.GrowProc
	CTime       time.Time
	Killed      bool
	ExitCode    int
	Chan        interface{} // sleep channel token; nil unless Sleeping

	body Body
	wake   chan struct{} // buffered 1; RunOnce sends, Yield/Sleep receive
	paused chan struct{} // buffered 1; Yield/Sleep send, RunOnce receives
	done   chan struct{} // closed once the body returns (Zombie transition)
	cpu    *lock.CPU     // the cpu currently (or most recently) running this slot
}

func newSlot() *Process {
	return &Process{
		State:  Unused,
		wake:   make(chan struct{}, 1),
		paused: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// curCPU returns the cpu this slot is running on. Only ever called from
// the slot's own body goroutine after it has been woken, by which point
// RunOnce's setCPU has already happened-before via the wake channel.
func (p *Process) curCPU() *lock.CPU { return p.cpu }

// setCPU records which cpu is about to run this slot. Only ever called
// by RunOnce before it sends on wake.
func (p *Process) setCPU(c *lock.CPU) { p.cpu = c }

func (p *Process) reset() {
	p.Pid = 0
	p.ParentPid = 0
	p.Name = ""
	p.State = Unused
	p.Priority = 0
	p.MFQLevel = 0
	p.Tickets = 0
	p.Sz = 0
	p.CTime = time.Time{}
	p.Killed = false
	p.ExitCode = 0
	p.Chan = nil
	p.body = nil
	p.cpu = nil
	p.wake = make(chan struct{}, 1)
	p.paused = make(chan struct{}, 1)
	p.done = make(chan struct{})
}
