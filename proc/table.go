package proc

import (
	"errors"
	"time"

	"github.com/AliEdalat/os-lab-5/lock"
)

var (
	ErrTableFull     = errors.New("proc: process table full")
	ErrNoChildren    = errors.New("proc: no children to wait for")
	ErrKilled        = errors.New("proc: process was killed while waiting")
	ErrNotFound      = errors.New("proc: no such pid")
	ErrInitHasNoBody = errors.New("proc: init body must not return")
	ErrBadSize       = errors.New("proc: user memory extent cannot go negative")
)

// initSz is the Sz a freshly allocated process starts with, standing in
// for the single page userinit's embedded image would occupy.
const initSz = 4096

// Table is the process table: a fixed-capacity slice of slots guarded by
// a single spinlock, exactly as proc.c's `struct { struct spinlock lock;
// struct proc proc[NPROC]; } ptable` is — reframed here as an explicit
// object (spec.md §9) instead of a file-scope global, with every call
// taking the calling *lock.CPU explicitly instead of deriving it from an
// implicit mycpu().
//
// Each process slot runs its Body on its own goroutine, parked on that
// slot's wake channel between scheduling quanta. This gives "context
// switch" a literal Go meaning — handing control between the scheduler's
// goroutine and the process's goroutine through a channel — without
// pretending to implement real preemption, which spec.md's non-goals
// explicitly exclude: a running Body keeps the CPU until it calls Yield,
// Sleep, or returns.
type Table struct {
	guard   *lock.Spinlock
	procs   []*Process
	nextPid int
	initPid int

	running map[*lock.CPU]*Process
}

// NewTable allocates a table with the given slot capacity (NPROC).
func NewTable(nproc int) *Table {
	t := &Table{
		guard:   lock.NewSpinlock("ptable"),
		procs:   make([]*Process, nproc),
		running: make(map[*lock.CPU]*Process),
	}
	for i := range t.procs {
		t.procs[i] = newSlot()
	}
	return t
}

// MyProc returns the process currently running on c, or nil if c is idle.
func (t *Table) MyProc(c *lock.CPU) *Process {
	t.guard.Acquire(c)
	p := t.running[c]
	t.guard.Release(c)
	return p
}

// allocproc scans for a free slot and initializes the fields proc.c's
// allocproc sets before dropping the ptable lock: pid, ctime, priority,
// MFQLevel, and the level-1 lottery default of 100 tickets.
func (t *Table) allocproc(c *lock.CPU, name string, body Body) (*Process, error) {
	t.guard.Acquire(c)
	var p *Process
	for _, cand := range t.procs {
		if cand.State == Unused {
			p = cand
			break
		}
	}
	if p == nil {
		t.guard.Release(c)
		return nil, ErrTableFull
	}
	t.nextPid++
	p.Pid = t.nextPid
	p.Name = name
	if len(p.Name) > MaxNameLen {
		p.Name = p.Name[:MaxNameLen]
	}
	p.State = Embryo
	p.CTime = time.Now()
	p.Priority = 10
	p.MFQLevel = 1
	p.Tickets = 100
	p.Sz = initSz
	p.body = body
	t.guard.Release(c)
	go t.runBody(p)
	return p, nil
}

// runBody is the process slot's dedicated goroutine. It blocks on wake
// until the scheduler first switches to this slot, runs Body to
// completion (Body itself blocks on wake again every time it calls
// Yield/Sleep), and on return tears the slot down to Zombie.
func (t *Table) runBody(p *Process) {
	<-p.wake
	if p.body != nil {
		p.body(p, p.curCPU())
	}
	t.finish(p)
}

// Userinit creates the first process directly in the Runnable state, the
// way proc.c's userinit does — there is no parent to fork from.
func (t *Table) Userinit(c *lock.CPU, name string, body Body) (*Process, error) {
	p, err := t.allocproc(c, name, body)
	if err != nil {
		return nil, err
	}
	t.guard.Acquire(c)
	p.ParentPid = p.Pid
	p.State = Runnable
	t.initPid = p.Pid
	t.guard.Release(c)
	return p, nil
}

// Fork creates a child of parent, inheriting its scheduling attributes
// (tickets, priority, MFQ level) the way a forked process inherits its
// parent's scheduling class in a real multilevel-feedback system, even
// though proc.c's own fork() predates the lottery/MFQ fields and so never
// says explicitly what a fork should inherit for them — this is the
// Open Question decision recorded in DESIGN.md. Sz is copied too,
// mirroring copyuvm's duplication of the parent's address space at its
// current size.
func (t *Table) Fork(c *lock.CPU, parent *Process, name string, body Body) (*Process, error) {
	child, err := t.allocproc(c, name, body)
	if err != nil {
		return nil, err
	}
	t.guard.Acquire(c)
	child.ParentPid = parent.Pid
	child.Tickets = parent.Tickets
	child.Priority = parent.Priority
	child.MFQLevel = parent.MFQLevel
	child.Sz = parent.Sz
	child.State = Runnable
	t.guard.Release(c)
	return child, nil
}

// GrowProc implements growproc(n): extends or shrinks p's user memory
// extent by n bytes (positive or negative) and updates Sz. Re-installing
// a page directory on the CPU has no analogue here — there is no real
// address space behind Sz — so this is the bookkeeping half of growproc
// alone. Nothing else in this kernel reads Sz; shm.Manager.Attach hands
// out virtual addresses without consulting it.
func (t *Table) GrowProc(c *lock.CPU, p *Process, n int) error {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	sz := p.Sz + n
	if sz < 0 {
		return ErrBadSize
	}
	p.Sz = sz
	return nil
}

// SetExitCode records the status a Body wants Wait's caller to observe.
// Call it before returning from Body; the table itself never infers a
// nonzero code from a panic (a Body that panics crashes its own
// goroutine, which is a programming error, not a simulated process exit).
func (t *Table) SetExitCode(p *Process, code int) { p.ExitCode = code }

// finish transitions p to Zombie, wakes its parent's Wait, and reparents
// any children to init — exit()'s closing sequence in proc.c, minus the
// file-descriptor/inode teardown that has no analogue here.
func (t *Table) finish(p *Process) {
	c := p.curCPU()
	if p.Pid == t.initPid {
		panic("proc: init process exited")
	}
	t.guard.Acquire(c)
	p.State = Zombie
	wakeInit := false
	for _, q := range t.procs {
		if q.State != Unused && q.ParentPid == p.Pid {
			q.ParentPid = t.initPid
			if q.State == Zombie {
				wakeInit = true
			}
		}
	}
	parent := p.ParentPid
	t.guard.Release(c)

	t.Wakeup(waitToken(parent), c)
	if wakeInit {
		t.Wakeup(waitToken(t.initPid), c)
	}
	close(p.done)
}

// waitToken is the sleep-channel identity a parent blocks on inside Wait
// and finish wakes it through — analogous to xv6 using curproc's address
// as wakeup's channel, but as a plain comparable value since processes
// here are identified by pid, not pointer identity that outlives reuse.
type waitToken int

// Wait blocks parent until one of its children becomes a Zombie, reaping
// it and returning its pid and exit code. Mirrors proc.c's wait(): no
// children is an immediate error, a killed caller returns immediately,
// otherwise it sleeps on the ptable lock and loops.
func (t *Table) Wait(c *lock.CPU, parent *Process) (pid int, code int, err error) {
	for {
		t.guard.Acquire(c)
		haveChildren := false
		for _, q := range t.procs {
			if q == parent || q.State == Unused || q.ParentPid != parent.Pid {
				continue
			}
			haveChildren = true
			if q.State == Zombie {
				pid, code = q.Pid, q.ExitCode
				t.guard.Release(c)
				q.reset()
				return pid, code, nil
			}
		}
		if !haveChildren || parent.Killed {
			t.guard.Release(c)
			if !haveChildren {
				return -1, 0, ErrNoChildren
			}
			return -1, 0, ErrKilled
		}
		// atomically release the ptable lock and sleep, exactly as
		// sleep(curproc, &ptable.lock) does when lk already is the lock
		// being held.
		t.Sleep(waitToken(parent.Pid), t.guard, c)
	}
}

// Sleep implements lock.Waiter for the table itself: it is the process
// table's own sleep()/wakeup() channel namespace, and every Sleeplock,
// Semaphore, RWLock, and WRLock in this kernel blocks through it.
func (t *Table) Sleep(chn interface{}, held *lock.Spinlock, c *lock.CPU) {
	p := t.running[c]
	if p == nil {
		panic("proc: Sleep called with no running process on this cpu")
	}
	if held != t.guard {
		t.guard.Acquire(c)
		held.Release(c)
	}
	p.Chan = chn
	p.State = Sleeping
	t.guard.Release(c)

	p.paused <- struct{}{}
	<-p.wake

	nc := p.curCPU()
	t.guard.Acquire(nc)
	p.Chan = nil
	t.guard.Release(nc)
	if held != t.guard {
		held.Acquire(nc)
	}
}

// Wakeup marks every Sleeping process waiting on chn as Runnable again.
func (t *Table) Wakeup(chn interface{}, c *lock.CPU) {
	t.guard.Acquire(c)
	for _, p := range t.procs {
		if p.State == Sleeping && p.Chan == chn {
			p.State = Runnable
			p.Chan = nil
		}
	}
	t.guard.Release(c)
}

// Kill marks pid for death: a Sleeping process is made Runnable so it can
// observe Killed and unwind, exactly as proc.c's kill() does.
func (t *Table) Kill(c *lock.CPU, pid int) error {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			p.Killed = true
			if p.State == Sleeping {
				p.State = Runnable
			}
			return nil
		}
	}
	return ErrNotFound
}

// Find returns the slot for pid, or nil if no live process has it.
func (t *Table) Find(c *lock.CPU, pid int) *Process {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			return p
		}
	}
	return nil
}

// Snapshot returns a point-in-time copy of every live slot, for the
// scheduler's selection logic and for ps()-style introspection. Unused
// slots are omitted.
func (t *Table) Snapshot(c *lock.CPU) []Process {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	out := make([]Process, 0, len(t.procs))
	for _, p := range t.procs {
		if p.State != Unused {
			out = append(out, *p)
		}
	}
	return out
}

// RunOnce switches c to run p for one scheduling quantum: it marks p
// Running, hands its goroutine the CPU via wake, and blocks until p
// either pauses (Yield/Sleep) or its Body returns (Zombie). This is the
// Go realization of xv6's swtch(): the "context" being switched to is a
// goroutine stack, not a saved register file.
func (t *Table) RunOnce(c *lock.CPU, p *Process) {
	t.guard.Acquire(c)
	p.setCPU(c)
	p.State = Running
	t.running[c] = p
	t.guard.Release(c)

	p.wake <- struct{}{}
	select {
	case <-p.paused:
	case <-p.done:
	}

	t.guard.Acquire(c)
	delete(t.running, c)
	t.guard.Release(c)
}

// Yield is called from within a running Body to voluntarily give up the
// remainder of its quantum, exactly as proc.c's yield() does.
func (t *Table) Yield(p *Process) {
	c := p.curCPU()
	t.guard.Acquire(c)
	if p.State == Running {
		p.State = Runnable
	}
	t.guard.Release(c)
	p.paused <- struct{}{}
	<-p.wake
}
