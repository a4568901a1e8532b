package proc_test

import (
	"testing"
	"time"

	"github.com/AliEdalat/os-lab-5/lock"
	"github.com/AliEdalat/os-lab-5/proc"
	"github.com/AliEdalat/os-lab-5/sched"
)

// newDriven returns a table with a single-CPU round-robin scheduler
// already running against it, the minimal pump RunOnce needs to ever move
// a process out of Runnable. A single, fixed cpu token is used for every
// quantum so that a process blocking inside Wait/Sleep across multiple
// quanta always finds itself still registered under the same identity in
// the table's running set.
func newDriven(t *testing.T, nproc int) (*proc.Table, *lock.CPU, func()) {
	t.Helper()
	tbl := proc.NewTable(nproc)
	c := lock.NewCPU(0)
	s := sched.New(tbl, sched.RoundRobin, 1)
	stop := make(chan struct{})
	go s.Run(c, stop)
	return tbl, c, func() { close(stop) }
}

// TestForkWaitRoundTrip forks a child that exits with a distinct code and
// confirms the parent's own Wait call (issued from within its Body, the
// only place Wait/Sleep may legally be called from) reaps exactly that
// pid/code pair.
func TestForkWaitRoundTrip(t *testing.T) {
	tbl, c, stop := newDriven(t, 8)
	defer stop()

	type result struct {
		pid, code, want int
		err             error
	}
	results := make(chan result, 1)

	parent, err := tbl.Userinit(c, "parent", func(p *proc.Process, c *lock.CPU) {
		child, err := tbl.Fork(c, p, "child", func(p *proc.Process, c *lock.CPU) {
			tbl.SetExitCode(p, 42)
		})
		if err != nil {
			results <- result{err: err}
			return
		}
		want := child.Pid
		pid, code, err := tbl.Wait(c, p)
		results <- result{pid: pid, code: code, want: want, err: err}
		<-make(chan struct{})
	})
	if err != nil {
		t.Fatalf("Userinit: %v", err)
	}
	_ = parent

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Wait: %v", r.err)
		}
		if r.pid != r.want {
			t.Fatalf("expected to reap pid %d, got %d", r.want, r.pid)
		}
		if r.code != 42 {
			t.Fatalf("expected exit code 42, got %d", r.code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parent never reaped its child")
	}
}

// TestWaitNoChildrenErrors confirms a process with no children gets
// ErrNoChildren immediately instead of blocking forever.
func TestWaitNoChildrenErrors(t *testing.T) {
	tbl, c, stop := newDriven(t, 4)
	defer stop()

	errs := make(chan error, 1)
	_, err := tbl.Userinit(c, "lonely", func(p *proc.Process, c *lock.CPU) {
		_, _, err := tbl.Wait(c, p)
		errs <- err
		<-make(chan struct{})
	})
	if err != nil {
		t.Fatalf("Userinit: %v", err)
	}

	select {
	case got := <-errs:
		if got != proc.ErrNoChildren {
			t.Fatalf("expected ErrNoChildren, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never returned")
	}
}

// TestKillUnblocksSleeper confirms a Sleeping process woken by Kill observes
// Killed rather than hanging forever.
func TestKillUnblocksSleeper(t *testing.T) {
	tbl, c, stop := newDriven(t, 8)
	defer stop()

	const chn = "sleep-chan"
	guard := lock.NewSpinlock("test-guard")
	woke := make(chan struct{})
	parent, err := tbl.Userinit(c, "sleeper", func(p *proc.Process, c *lock.CPU) {
		guard.Acquire(c)
		tbl.Sleep(chn, guard, c)
		guard.Release(c)
		close(woke)
		<-make(chan struct{})
	})
	if err != nil {
		t.Fatalf("Userinit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p := tbl.Find(c, parent.Pid); p != nil && p.State == proc.Sleeping {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if p := tbl.Find(c, parent.Pid); p == nil || p.State != proc.Sleeping {
		t.Fatal("sleeper never reached Sleeping")
	}

	if err := tbl.Kill(c, parent.Pid); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("killed sleeper never woke")
	}
	if p := tbl.Find(c, parent.Pid); p == nil || !p.Killed {
		t.Fatal("expected process to be marked Killed")
	}
}

// TestZombieReparentsToInit confirms a grandchild whose immediate parent
// has already exited is reparented to init, and that init's own reap loop
// eventually observes its exit code.
func TestZombieReparentsToInit(t *testing.T) {
	tbl, c, stop := newDriven(t, 8)
	defer stop()

	reaped := make(chan int, 4) // exit codes init reaps, in order
	gcPid := make(chan int, 1)

	initP, err := tbl.Userinit(c, "init", func(p *proc.Process, c *lock.CPU) {
		for {
			_, code, err := tbl.Wait(c, p)
			if err == proc.ErrNoChildren {
				time.Sleep(time.Millisecond)
				continue
			}
			if err != nil {
				continue
			}
			reaped <- code
		}
	})
	if err != nil {
		t.Fatalf("Userinit: %v", err)
	}

	_, err = tbl.Fork(c, initP, "mid", func(p *proc.Process, c *lock.CPU) {
		gc, err := tbl.Fork(c, p, "grandchild", func(p *proc.Process, c *lock.CPU) {
			tbl.SetExitCode(p, 7)
		})
		if err != nil {
			t.Errorf("nested Fork: %v", err)
			return
		}
		gcPid <- gc.Pid
		tbl.SetExitCode(p, 0)
	})
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	<-gcPid

	seen := map[int]bool{}
	deadline := time.Now().Add(2 * time.Second)
	for len(seen) < 2 && time.Now().Before(deadline) {
		select {
		case code := <-reaped:
			seen[code] = true
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !seen[0] || !seen[7] {
		t.Fatalf("expected init to reap both mid (code 0) and reparented grandchild (code 7), saw %v", seen)
	}
}

// TestGrowProc confirms growproc(n) bookkeeping: a freshly allocated
// process starts with a nonzero Sz, grows and shrinks by n, and refuses
// to go negative.
func TestGrowProc(t *testing.T) {
	tbl := proc.NewTable(4)
	c := lock.NewCPU(0)

	p, err := tbl.Userinit(c, "init", func(p *proc.Process, c *lock.CPU) {
		<-make(chan struct{})
	})
	if err != nil {
		t.Fatalf("Userinit: %v", err)
	}
	start := p.Sz
	if start <= 0 {
		t.Fatalf("expected a freshly allocated process to start with a positive Sz, got %d", start)
	}

	if err := tbl.GrowProc(c, p, 4096); err != nil {
		t.Fatalf("GrowProc(+4096): %v", err)
	}
	if p.Sz != start+4096 {
		t.Fatalf("expected Sz %d after growing, got %d", start+4096, p.Sz)
	}

	if err := tbl.GrowProc(c, p, -4096); err != nil {
		t.Fatalf("GrowProc(-4096): %v", err)
	}
	if p.Sz != start {
		t.Fatalf("expected Sz %d after shrinking back, got %d", start, p.Sz)
	}

	if err := tbl.GrowProc(c, p, -(start + 1)); err != proc.ErrBadSize {
		t.Fatalf("expected ErrBadSize shrinking below zero, got %v", err)
	}
}
