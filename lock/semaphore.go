package lock

// Semaphore is a classic counting semaphore: Wait blocks while the count
// is zero, Signal increments it and wakes a waiter. Grounded on defs.h's
// semaphore forward declaration (never given a body in the kept source),
// supplied fresh per §9/§12.
type Semaphore struct {
	name  string
	guard *Spinlock
	count int
	w     Waiter
}

// NewSemaphore returns a semaphore initialized to count, which blocks on w
// when contended.
func NewSemaphore(name string, count int, w Waiter) *Semaphore {
	return &Semaphore{
		name:  name,
		guard: NewSpinlock(name + ".guard"),
		count: count,
		w:     w,
	}
}

// Wait decrements the count, blocking while it is already zero.
func (s *Semaphore) Wait(c *CPU) {
	s.guard.Acquire(c)
	for s.count == 0 {
		s.w.Sleep(s, s.guard, c)
	}
	s.count--
	s.guard.Release(c)
}

// Signal increments the count and wakes one waiter.
func (s *Semaphore) Signal(c *CPU) {
	s.guard.Acquire(c)
	s.count++
	s.guard.Release(c)
	s.w.Wakeup(s, c)
}

// Value returns the current count, for diagnostics/tests only.
func (s *Semaphore) Value() int {
	return s.count
}
