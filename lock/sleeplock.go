package lock

// Sleeplock is a long-term-hold lock: instead of spinning, a contender
// blocks via the kernel's sleep/wakeup mechanism, giving up its CPU to
// the scheduler while waiting. Grounded on defs.h's sleeplock.h
// declarations (acquiresleep/releasesleep/holdingsleep), reframed here to
// take the Waiter it should sleep on explicitly rather than a global
// process table.
type Sleeplock struct {
	name   string
	guard  *Spinlock
	locked bool
	holder interface{} // opaque token identifying the current holder (e.g. pid)
	w      Waiter
}

// NewSleeplock returns a free sleep-lock that blocks contenders via w.
func NewSleeplock(name string, w Waiter) *Sleeplock {
	return &Sleeplock{
		name:  name,
		guard: NewSpinlock(name + ".guard"),
		w:     w,
	}
}

// Acquire blocks (via w.Sleep) until the lock is free, then marks it held
// by who. who is an opaque caller-supplied identity (typically a pid)
// used only for diagnostics and Holding.
func (s *Sleeplock) Acquire(c *CPU, who interface{}) {
	s.guard.Acquire(c)
	for s.locked {
		s.w.Sleep(s, s.guard, c)
	}
	s.locked = true
	s.holder = who
	s.guard.Release(c)
}

// Release frees the lock and wakes any sleepers waiting on it.
func (s *Sleeplock) Release(c *CPU) {
	s.guard.Acquire(c)
	s.locked = false
	s.holder = nil
	s.guard.Release(c)
	s.w.Wakeup(s, c)
}

// Holding reports whether who currently holds the lock.
func (s *Sleeplock) Holding(who interface{}) bool {
	return s.locked && s.holder == who
}
