/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package workload is the demo/fuzz driver every lifecycle operation,
// the scheduler, shared memory, and the syscall tracer need a caller
// outside of tests. Grounded on manager/process.go's real-OS-process
// restarter: the same restart/backoff/cooldown loop, driving the
// kernel's own simulated fork/exit/wait cycle instead of os/exec.
package workload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/brianvoe/gofakeit"
	"golang.org/x/time/rate"

	"github.com/AliEdalat/os-lab-5/config"
	"github.com/AliEdalat/os-lab-5/kernel"
	"github.com/AliEdalat/os-lab-5/lock"
	"github.com/AliEdalat/os-lab-5/log"
	"github.com/AliEdalat/os-lab-5/proc"
	"github.com/AliEdalat/os-lab-5/trace"
)

// Driver keeps ProcessCount simulated worker processes alive under init,
// restarting crashed workers with the same fixed-cooldown shape
// manager/process.go's restarter applies to a real child process: a slot
// that crashes MaxRestarts times within RestartPeriod pauses for
// CooldownPeriod before forking again.
//
// init itself only ever has one logical waiter: proc.Table.Wait reaps
// *any* zombie child of its caller, so only init's own Body may call it —
// a free-floating goroutine with a synthetic cpu identity would never be
// registered in the table's running set and Wait's underlying Sleep would
// panic the first time it actually had to block. InitBody is therefore the
// reap loop itself, run on init's own cpu identity, and routes each reaped
// exit back to the slot that forked that pid. Each worker slot instead
// gets its own dedicated *lock.CPU for its own Fork calls — lock.CPU's
// nesting bookkeeping is only safe for one goroutine at a time, exactly
// like a real core's own ncli, so concurrent slots can never share one.
type Driver struct {
	k   *kernel.Kernel
	cfg config.KernelConfig
	lg  *log.Logger

	limiter *rate.Limiter

	mu       sync.Mutex
	restarts map[string][]time.Time  // per worker slot name, most-recent-first
	waiting  map[int]chan exitResult // pid -> channel the forking slot blocks on
}

type exitResult struct {
	code int
	err  error
}

// New returns a Driver bound to k, configured from cfg.Workload.
func New(k *kernel.Kernel, cfg *config.KernelConfig, lg *log.Logger) *Driver {
	return &Driver{
		k:        k,
		cfg:      *cfg,
		lg:       lg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Workload.ForkRate), 1),
		restarts: make(map[string][]time.Time),
		waiting:  make(map[int]chan exitResult),
	}
}

// InitBody returns the Body the kernel should boot as init: an infinite
// reap loop (Wait returns once per reaped child or error; the loop itself
// never exits, which is what keeps init alive),
// run on init's own cpu identity so the table's Sleep path can find it in
// its running set across blocking waits, exactly as a real process calling
// wait() in a loop would. Each reaped exit is routed to whichever worker
// slot forked that pid, via d.waiting.
func (d *Driver) InitBody() proc.Body {
	return func(p *proc.Process, c *lock.CPU) {
		for {
			pid, code, err := d.k.Procs.Wait(c, p)
			if err != nil {
				// no children yet: back off briefly rather than
				// spinning the process-table lock.
				time.Sleep(10 * time.Millisecond)
				continue
			}
			d.mu.Lock()
			ch := d.waiting[pid]
			delete(d.waiting, pid)
			d.mu.Unlock()
			if ch != nil {
				ch <- exitResult{code: code}
			}
		}
	}
}

// Run keeps cfg.Workload.ProcessCount workers forked from init until ctx
// is done: one goroutine per worker slot forks, applies restart/cooldown
// bookkeeping, and forks a replacement once its reap arrives — the same
// cycle manager/process.go's routine() runs around one os/exec.Cmd,
// applied here to init's own fork/wait instead. init itself (InitBody)
// must already be running as the process the kernel booted.
func (d *Driver) Run(ctx context.Context, init *proc.Process) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workload.ProcessCount; i++ {
		wg.Add(1)
		slot := fmt.Sprintf("worker-%d", i)
		slotCPU := lock.NewCPU(-1000 - i)
		go func(slot string, c *lock.CPU) {
			defer wg.Done()
			d.runSlot(ctx, c, init, slot)
		}(slot, slotCPU)
	}
	<-ctx.Done()
	wg.Wait()
}

// runSlot repeatedly forks a worker for one logical slot on its own cpu
// identity, blocks for the reaper to deliver that worker's exit, and
// applies restart/cooldown bookkeeping, until ctx is done.
func (d *Driver) runSlot(ctx context.Context, c *lock.CPU, init *proc.Process, slot string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if cool := d.shouldCooldown(slot); cool > 0 {
			if interruptibleSleep(ctx, cool) {
				return
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return // ctx cancelled
		}

		name := randomdata.SillyName()
		child, err := d.k.Procs.Fork(c, init, name, d.workerBody(slot))
		if err != nil {
			d.lg.Warn("fork failed", log.KV("slot", slot), log.KVErr(err))
			if interruptibleSleep(ctx, time.Second) {
				return
			}
			continue
		}
		d.lg.Info("worker started", log.KV("slot", slot), log.KV("pid", child.Pid), log.KV("name", name))

		ch := make(chan exitResult, 1)
		d.mu.Lock()
		d.waiting[child.Pid] = ch
		d.mu.Unlock()

		select {
		case res := <-ch:
			d.lg.Info("worker exited", log.KV("slot", slot), log.KV("pid", child.Pid), log.KV("code", res.code))
			if res.code != 0 {
				d.recordCrash(slot)
			}
		case <-ctx.Done():
			return
		}
	}
}

// workerBody is the simulated work a forked worker performs: issue a
// handful of fuzzed syscalls through the tracer, touch a shared-memory
// block, sleep on a channel until woken, yield once, then exit — a small
// bounded amount of "work", per §12, standing in for a real program's
// initcode.
func (d *Driver) workerBody(slot string) proc.Body {
	return func(p *proc.Process, c *lock.CPU) {
		crash := gofakeit.Float32Range(0, 1) < d.cfg.Workload.CrashRate

		d.k.Dispatch(c, p, "chtickets", trace.IntArg(p.Pid), trace.IntArg(gofakeit.Number(10, 500)))
		d.k.Dispatch(c, p, "getpid")
		for i := 0; i < 3; i++ {
			d.k.Dispatch(c, p, "write", trace.StringArg(gofakeit.HackerPhrase()))
		}

		// shmID is bounded by the table's own capacity rather than the
		// pid, which grows without bound; a clash with another live
		// worker's block just fails shm_open cleanly, same as any two
		// real processes racing to shm_open the same id.
		shmID := p.Pid % d.cfg.Kernel.MAXSHM
		if ret, err := d.k.Dispatch(c, p, "shm_open", trace.IntArg(shmID), trace.IntArg(64), trace.IntArg(0)); err != nil || ret != 0 {
			d.lg.Debug("shm_open skipped", log.KV("slot", slot), log.KV("pid", p.Pid), log.KV("id", shmID), log.KVErr(err))
		} else {
			d.k.Dispatch(c, p, "shm_attach", trace.IntArg(shmID))
			d.k.Dispatch(c, p, "shm_close", trace.IntArg(shmID))
		}

		d.sleepAWhile(c, p)

		d.k.Procs.Yield(p)

		code := 0
		if crash || p.Killed {
			code = 1
		}
		d.lg.Debug("worker body finishing", log.KV("slot", slot), log.KV("pid", p.Pid), log.KV("code", code))
		d.k.Procs.SetExitCode(p, code)
	}
}

// sleepAWhile parks p on a sleep channel unique to its pid and wakes it
// shortly after from a disposable goroutine, exercising proc.Table's own
// Sleep/Wakeup pair the way a worker blocking on an event (a pipe read,
// a condition variable) would. The waker's cpu identity only ever calls
// Wakeup, which — unlike Sleep — does not require the caller be
// registered as running in the table, so a throwaway *lock.CPU is safe.
func (d *Driver) sleepAWhile(c *lock.CPU, p *proc.Process) {
	token := workerWakeToken(p.Pid)
	go func() {
		time.Sleep(time.Millisecond)
		d.k.Procs.Wakeup(token, lock.NewCPU(-3000-p.Pid))
	}()
	guard := lock.NewSpinlock(fmt.Sprintf("worker-%d-sleep", p.Pid))
	guard.Acquire(c)
	d.k.Procs.Sleep(token, guard, c)
	guard.Release(c)
}

type workerWakeToken int

func (d *Driver) recordCrash(slot string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := append([]time.Time{time.Now()}, d.restarts[slot]...)
	if len(rs) > d.cfg.Workload.MaxRestarts {
		rs = rs[:d.cfg.Workload.MaxRestarts]
	}
	d.restarts[slot] = rs
}

// shouldCooldown mirrors manager/process.go's restarter.shouldSleep:
// once MaxRestarts crashes have landed within RestartPeriod, the slot
// sleeps for CooldownPeriod before forking again.
func (d *Driver) shouldCooldown(slot string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.restarts[slot]
	if len(rs) < d.cfg.Workload.MaxRestarts {
		return 0
	}
	oldest := rs[len(rs)-1]
	period := time.Duration(d.cfg.Workload.RestartPeriod) * time.Second
	if time.Since(oldest) < period {
		return time.Duration(d.cfg.Workload.CooldownPeriod) * time.Second
	}
	return 0
}

func interruptibleSleep(ctx context.Context, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return false
	case <-ctx.Done():
		return true
	}
}
