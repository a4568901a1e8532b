package lock

import (
	"sync"
	"testing"
)

// fakeWaiter is a minimal Waiter for tests: instead of a real process
// table it just parks the calling goroutine on a condition variable keyed
// by channel token, which is enough to exercise sleep-lock/semaphore/rwlock
// contention without pulling in proc.
type fakeWaiter struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newFakeWaiter() *fakeWaiter {
	fw := &fakeWaiter{}
	fw.cond = sync.NewCond(&fw.mu)
	return fw
}

func (fw *fakeWaiter) Sleep(chn interface{}, held *Spinlock, c *CPU) {
	held.Release(c)
	fw.mu.Lock()
	fw.cond.Wait()
	fw.mu.Unlock()
	held.Acquire(c)
}

func (fw *fakeWaiter) Wakeup(chn interface{}, c *CPU) {
	fw.cond.Broadcast()
}

func TestSpinlockMutualExclusion(t *testing.T) {
	sl := NewSpinlock("test")
	cpus := make([]*CPU, 8)
	for i := range cpus {
		cpus[i] = NewCPU(i)
	}
	var counter int
	var wg sync.WaitGroup
	for i := range cpus {
		wg.Add(1)
		go func(c *CPU) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				sl.Acquire(c)
				counter++
				sl.Release(c)
			}
		}(cpus[i])
	}
	wg.Wait()
	if counter != 8*1000 {
		t.Fatalf("expected counter 8000, got %d", counter)
	}
}

func TestSpinlockPanicsOnDoubleAcquire(t *testing.T) {
	sl := NewSpinlock("double")
	c := NewCPU(0)
	sl.Acquire(c)
	defer sl.Release(c)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on re-acquiring an already-held spinlock")
		}
	}()
	sl.Acquire(c)
}

func TestSpinlockPanicsOnReleaseNotHeld(t *testing.T) {
	sl := NewSpinlock("notheld")
	c := NewCPU(0)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic releasing a lock this cpu does not hold")
		}
	}()
	sl.Release(c)
}

func TestCPUPushPopCliNesting(t *testing.T) {
	c := NewCPU(0)
	c.Sti()
	c.PushCli()
	c.PushCli()
	if c.IntEnabled() {
		t.Fatal("interrupts should be disabled while nested under PushCli")
	}
	c.PopCli()
	if c.IntEnabled() {
		t.Fatal("interrupts should remain disabled until the outermost PopCli")
	}
	c.PopCli()
	if !c.IntEnabled() {
		t.Fatal("interrupts should be restored once nesting reaches zero")
	}
}

func TestTicketLockFIFOOrder(t *testing.T) {
	tl := NewTicketLock("fifo")
	const n = 50
	order := make([]int, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	start := make(chan struct{})
	tickets := make([]uint64, n)
	var drawMu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			drawMu.Lock()
			my := tl.Acquire()
			tickets[i] = my
			drawMu.Unlock()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			tl.Release()
		}(i)
	}
	close(start)
	wg.Wait()
	if len(order) != n {
		t.Fatalf("expected %d admissions, got %d", n, len(order))
	}
	for k, i := range order {
		if tickets[i] != uint64(k) {
			t.Fatalf("admission %d held ticket %d, expected FIFO ticket %d", k, tickets[i], k)
		}
	}
}

func TestSemaphoreWaitSignal(t *testing.T) {
	w := newFakeWaiter()
	sem := NewSemaphore("sem", 0, w)
	c := NewCPU(0)
	done := make(chan struct{})
	go func() {
		waiter := NewCPU(1)
		sem.Wait(waiter)
		close(done)
	}()
	// Signal may land before or after the waiter blocks; either way the
	// single Wait consumes it.
	sem.Signal(c)
	<-done
	if sem.Value() != 0 {
		t.Fatalf("expected semaphore value 0 after matched wait/signal, got %d", sem.Value())
	}
}

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	w := newFakeWaiter()
	rw := NewRWLock("rw", w)
	c1, c2 := NewCPU(0), NewCPU(1)
	rw.RLock(c1)
	rw.RLock(c2)
	rw.RUnlock(c1)
	rw.RUnlock(c2)
}

func TestWRLockExcludesWriters(t *testing.T) {
	w := newFakeWaiter()
	wr := NewWRLock("wr", w)
	c := NewCPU(0)
	wr.Lock(c)
	if wr.readers != 0 || !wr.writing {
		t.Fatal("expected writer to hold lock exclusively")
	}
	wr.Unlock(c)
}
