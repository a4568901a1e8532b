/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package kernel wires lock, proc, sched, shm, and trace into one bootable
// instance, and is the trap-dispatch entry point every syscall in spec.md
// §6 goes through. Grounded on original_source/main.c's boot sequence
// (mpinit/lapicinit/kinit/pinit/tvinit -> userinit -> per-CPU mpmain ->
// scheduler()) and syscall.c's trap-vector dispatch, reframed per
// spec.md §9 as an explicit object a test or cmd/kernelsim can construct
// many of in one process instead of a single file-scope global machine.
package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AliEdalat/os-lab-5/config"
	"github.com/AliEdalat/os-lab-5/lock"
	"github.com/AliEdalat/os-lab-5/log"
	"github.com/AliEdalat/os-lab-5/proc"
	"github.com/AliEdalat/os-lab-5/sched"
	"github.com/AliEdalat/os-lab-5/shm"
	"github.com/AliEdalat/os-lab-5/trace"
)

// Kernel is one simulated machine: a process table, one Scheduler per
// simulated CPU, a shared-memory table, a syscall dispatch table, and a
// logger. BootID is logged at boot and halt and names this instance's
// invocation-log dump file, so that multiple Kernels sharing one gzip dump
// directory never collide.
type Kernel struct {
	BootID uuid.UUID

	Procs *proc.Table
	Shm   *shm.Manager
	Trace *trace.Tracer
	Log   *log.Logger

	cpus   []*lock.CPU
	scheds []*sched.Scheduler
	stop   chan struct{}

	// monitorCPU is a cpu identity that belongs to no scheduler: used by
	// out-of-band introspection (the SIGUSR1 ps dump) that runs on its
	// own goroutine rather than inside a dispatched syscall, so it must
	// not share bookkeeping with whatever cpu is actively scheduling.
	monitorCPU *lock.CPU

	// pidCPU tracks, for each pid currently inside a Dispatch call, the
	// *lock.CPU its caller is running on. A syscall registered in
	// syscalls.go recovers its caller's cpu identity from here rather
	// than through trace.Handler's (pid, args) signature, which has no
	// room for one — the trap frame's register set in the original has
	// no such field either; mycpu() derives it from the hardware APIC
	// id instead, which this simulation has no analogue for.
	pidCPUmu sync.Mutex
	pidCPU   map[int]*lock.CPU

	// locksMu guards the lock stress-test instance tables (§12): one
	// fresh lock per pid per kind, created by *init and exercised by
	// *test.
	locksMu     sync.Mutex
	ticketLocks map[int]*lock.TicketLock
	rwLocks     map[int]*lock.RWLock
	wrLocks     map[int]*lock.WRLock
}

// New boots a Kernel from cfg: allocates the process table, shared-memory
// table, one Scheduler per configured CPU, and registers every syscall named
// in spec.md §6. It does not create init; Boot does.
func New(cfg *config.KernelConfig, lg *log.Logger) (*Kernel, error) {
	if cfg.Kernel.NumCPU < 1 {
		return nil, errors.New("kernel: NumCPU must be at least 1")
	}
	policy := sched.RoundRobin
	switch cfg.Kernel.Scheduler {
	case "mfq", "":
		policy = sched.MFQ
	case "round-robin":
		policy = sched.RoundRobin
	default:
		return nil, fmt.Errorf("kernel: unknown scheduler policy %q", cfg.Kernel.Scheduler)
	}

	k := &Kernel{
		BootID: uuid.New(),
		Procs:  proc.NewTable(cfg.Kernel.NPROC),
		Shm:    shm.NewManager(cfg.Kernel.MAXSHM, cfg.Kernel.MAXSHMPBLOCK),
		Trace:  trace.New(),
		Log:    lg,
		stop:   make(chan struct{}),
		pidCPU: make(map[int]*lock.CPU),

		ticketLocks: make(map[int]*lock.TicketLock),
		rwLocks:     make(map[int]*lock.RWLock),
		wrLocks:     make(map[int]*lock.WRLock),

		monitorCPU: lock.NewCPU(-1),
	}
	for i := 0; i < cfg.Kernel.NumCPU; i++ {
		c := lock.NewCPU(i)
		k.cpus = append(k.cpus, c)
		k.scheds = append(k.scheds, sched.New(k.Procs, policy, cfg.Kernel.RandSeed))
	}
	k.registerSyscalls()

	lg.Info("kernel booted", log.KV("boot_id", k.BootID), log.KV("cpus", cfg.Kernel.NumCPU),
		log.KV("scheduler", cfg.Kernel.Scheduler), log.KV("nproc", cfg.Kernel.NPROC))
	return k, nil
}

// Boot creates init from body on cpu 0 and starts every CPU's scheduler
// loop on its own goroutine, mirroring main.c's userinit() followed by
// each AP/BSP entering mpmain()'s scheduler() call.
func (k *Kernel) Boot(initBody proc.Body) (*proc.Process, error) {
	p, err := k.Procs.Userinit(k.cpus[0], "init", initBody)
	if err != nil {
		return nil, err
	}
	for i, s := range k.scheds {
		go s.Run(k.cpus[i], k.stop)
	}
	k.Log.Info("init started", log.KV("pid", p.Pid))
	return p, nil
}

// Halt implements the halt syscall: stops every CPU's scheduler loop.
// Mirrors a clean power-off rather than a panic; nothing here recovers a
// programming error (that path is Fatal/panic, per §10.3).
func (k *Kernel) Halt() {
	k.Log.Info("kernel halted", log.KV("boot_id", k.BootID))
	close(k.stop)
}

// CPU returns the i'th simulated CPU identity, for callers (tests,
// workload) that need to issue syscalls as if running on a specific CPU.
func (k *Kernel) CPU(i int) *lock.CPU { return k.cpus[i] }

// Dispatch is the trap entry point (spec.md §4.6): a process running on
// c invokes the named syscall with args. It records c as p's caller
// identity for the duration of the call so the registered handler can
// recover it, then delegates to the tracer, which records the invocation
// to the global log and to p's own telemetry regardless of outcome.
func (k *Kernel) Dispatch(c *lock.CPU, p *proc.Process, name string, args ...trace.Arg) (int, error) {
	k.pidCPUmu.Lock()
	k.pidCPU[p.Pid] = c
	k.pidCPUmu.Unlock()

	ret, err := k.Trace.Dispatch(p.Pid, name, args...)

	k.pidCPUmu.Lock()
	delete(k.pidCPU, p.Pid)
	k.pidCPUmu.Unlock()

	var unknown trace.ErrUnknownSyscall
	if err != nil && !errors.As(err, &unknown) {
		k.Log.Debug("syscall error", log.KV("pid", p.Pid), log.KV("syscall", name), log.KVErr(err))
	}
	return ret, err
}

// cpuFor recovers the cpu identity a syscall handler should use for pid,
// set by the enclosing Dispatch call. Panics if called outside one — a
// handler invoked any other way is a programming error.
func (k *Kernel) cpuFor(pid int) *lock.CPU {
	k.pidCPUmu.Lock()
	defer k.pidCPUmu.Unlock()
	c, ok := k.pidCPU[pid]
	if !ok {
		panic(fmt.Sprintf("kernel: syscall handler invoked for pid %d outside Dispatch", pid))
	}
	return c
}
