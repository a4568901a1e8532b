package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/AliEdalat/os-lab-5/config"
	"github.com/AliEdalat/os-lab-5/lock"
	"github.com/AliEdalat/os-lab-5/log"
	"github.com/AliEdalat/os-lab-5/proc"
	"github.com/AliEdalat/os-lab-5/trace"
)

func testKernel(t *testing.T, numCPU int) *Kernel {
	t.Helper()
	cfg := config.Default()
	cfg.Kernel.NPROC = 16
	cfg.Kernel.NumCPU = numCPU
	k, err := New(cfg, log.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func waitForState(t *testing.T, k *Kernel, pid int, want proc.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p := k.Procs.Find(k.monitorCPU, pid); p != nil && p.State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pid %d never reached state %s", pid, want)
}

// TestBootAndHaltStopsSchedulers boots a two-cpu kernel with an init that
// idles forever, confirms the scheduler loops are actually driving it
// (it reaches Running at least once), then halts and checks Halt doesn't
// hang or panic.
func TestBootAndHaltStopsSchedulers(t *testing.T) {
	k := testKernel(t, 2)
	ran := make(chan struct{})
	var once sync.Once
	body := func(p *proc.Process, c *lock.CPU) {
		once.Do(func() { close(ran) })
		for !p.Killed {
			k.Procs.Yield(p)
		}
		<-make(chan struct{})
	}
	initP, err := k.Boot(body)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("init never ran")
	}
	k.Procs.Kill(k.monitorCPU, initP.Pid)
	k.Halt()
}

// TestDispatchChTicketsAndPs exercises the chtickets/ps syscalls end to
// end through Dispatch, the way a Body would invoke them on itself.
func TestDispatchChTicketsAndPs(t *testing.T) {
	k := testKernel(t, 1)
	done := make(chan struct{})
	body := func(p *proc.Process, c *lock.CPU) {
		defer func() { close(done); <-make(chan struct{}) }()
		if _, err := k.Dispatch(c, p, "chtickets", trace.IntArg(p.Pid), trace.IntArg(250)); err != nil {
			t.Errorf("chtickets: %v", err)
		}
		if ret, err := k.Dispatch(c, p, "ps"); err != nil || ret != 0 {
			t.Errorf("ps: ret=%d err=%v", ret, err)
		}
	}
	initP, err := k.Boot(body)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("body never finished")
	}
	waitForState(t, k, initP.Pid, proc.Running, time.Second)
	if k.Trace.GetCount(initP.Pid, "chtickets") != 1 {
		t.Fatalf("expected one recorded chtickets call")
	}
}

// TestDispatchShmOpenAttachClose exercises the shm_open/shm_attach/shm_close
// syscalls through Dispatch for a single process acting as its own owner.
func TestDispatchShmOpenAttachClose(t *testing.T) {
	k := testKernel(t, 1)
	done := make(chan struct{})
	body := func(p *proc.Process, c *lock.CPU) {
		defer func() { close(done); <-make(chan struct{}) }()
		ret, err := k.Dispatch(c, p, "shm_open", trace.IntArg(3), trace.IntArg(2), trace.IntArg(0))
		if err != nil || ret != 0 {
			t.Errorf("shm_open: ret=%d err=%v", ret, err)
		}
		ret, err = k.Dispatch(c, p, "shm_attach", trace.IntArg(3))
		if err != nil || ret <= 0 {
			t.Errorf("shm_attach: ret=%d err=%v", ret, err)
		}
		ret, err = k.Dispatch(c, p, "shm_close", trace.IntArg(3))
		if err != nil || ret != 0 {
			t.Errorf("shm_close: ret=%d err=%v", ret, err)
		}
	}
	if _, err := k.Boot(body); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("body never finished")
	}
}

// TestDispatchUnknownSyscall confirms Dispatch surfaces
// trace.ErrUnknownSyscall for a name with no registered handler.
func TestDispatchUnknownSyscall(t *testing.T) {
	k := testKernel(t, 1)
	done := make(chan struct{})
	body := func(p *proc.Process, c *lock.CPU) {
		defer func() { close(done); <-make(chan struct{}) }()
		_, err := k.Dispatch(c, p, "reboot_into_dos")
		if _, ok := err.(trace.ErrUnknownSyscall); !ok {
			t.Errorf("expected ErrUnknownSyscall, got %T: %v", err, err)
		}
	}
	if _, err := k.Boot(body); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("body never finished")
	}
}

// TestTicketLockStressSyscalls exercises ticketlockinit/ticketlocktest
// end to end, including the goroutine-level mutual-exclusion check.
func TestTicketLockStressSyscalls(t *testing.T) {
	k := testKernel(t, 1)
	done := make(chan struct{})
	body := func(p *proc.Process, c *lock.CPU) {
		defer func() { close(done); <-make(chan struct{}) }()
		if _, err := k.Dispatch(c, p, "ticketlockinit"); err != nil {
			t.Errorf("ticketlockinit: %v", err)
			return
		}
		ret, err := k.Dispatch(c, p, "ticketlocktest", trace.IntArg(8))
		if err != nil || ret != 0 {
			t.Errorf("ticketlocktest: ret=%d err=%v", ret, err)
		}
	}
	if _, err := k.Boot(body); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("body never finished")
	}
}

// TestRWLockStressSyscall exercises rwinit/rwtest with concurrent readers
// and writers against one process's rwlock instance.
func TestRWLockStressSyscall(t *testing.T) {
	k := testKernel(t, 1)
	done := make(chan struct{})
	body := func(p *proc.Process, c *lock.CPU) {
		defer func() { close(done); <-make(chan struct{}) }()
		if _, err := k.Dispatch(c, p, "rwinit"); err != nil {
			t.Errorf("rwinit: %v", err)
			return
		}
		ret, err := k.Dispatch(c, p, "rwtest", trace.IntArg(4), trace.IntArg(4))
		if err != nil || ret != 0 {
			t.Errorf("rwtest: ret=%d err=%v", ret, err)
		}
	}
	if _, err := k.Boot(body); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("body never finished")
	}
}
