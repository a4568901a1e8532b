package lock

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Spinlock is a mutual-exclusion lock that busy-waits instead of yielding
// to the Go runtime scheduler, mirroring xv6's struct spinlock. Acquire
// and Release must be called with the CPU that is making the call; the
// lock uses that to detect self-deadlock and to implement Holding.
type Spinlock struct {
	name   string
	locked int32 // 0 = free, 1 = held; CAS'd

	// cpu records which CPU holds the lock. It is only valid to read
	// while locked == 1, and is only ever written by the CPU that just
	// won the CAS, so no separate synchronization is needed for it.
	cpu *CPU
}

// NewSpinlock returns a free spinlock identified by name for diagnostics.
func NewSpinlock(name string) *Spinlock {
	return &Spinlock{name: name}
}

// Name returns the lock's diagnostic name.
func (s *Spinlock) Name() string { return s.name }

// Acquire disables interrupts on c (to prevent a timer-driven reschedule
// while the lock is held) and spins until the lock is free, exactly as
// acquire() does in the source. Panics if c already holds the lock.
func (s *Spinlock) Acquire(c *CPU) {
	c.PushCli()
	if s.Holding(c) {
		panic(fmt.Sprintf("acquire %s: already held by cpu %d", s.name, c.ID))
	}
	for !atomic.CompareAndSwapInt32(&s.locked, 0, 1) {
		runtime.Gosched()
	}
	s.cpu = c
}

// TryAcquire attempts a non-blocking Acquire, returning false immediately
// if the lock is already held rather than spinning.
func (s *Spinlock) TryAcquire(c *CPU) bool {
	c.PushCli()
	if s.Holding(c) {
		panic(fmt.Sprintf("acquire %s: already held by cpu %d", s.name, c.ID))
	}
	if !atomic.CompareAndSwapInt32(&s.locked, 0, 1) {
		c.PopCli()
		return false
	}
	s.cpu = c
	return true
}

// Release hands the lock back, panicking if c does not currently hold it.
func (s *Spinlock) Release(c *CPU) {
	if !s.Holding(c) {
		panic(fmt.Sprintf("release %s: not held by cpu %d", s.name, c.ID))
	}
	s.cpu = nil
	atomic.StoreInt32(&s.locked, 0)
	c.PopCli()
}

// Holding reports whether c currently holds the lock.
func (s *Spinlock) Holding(c *CPU) bool {
	return atomic.LoadInt32(&s.locked) == 1 && s.cpu == c
}
