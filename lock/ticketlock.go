package lock

import "sync/atomic"

// TicketLock is a strictly-FIFO mutual-exclusion lock: each acquirer draws
// a ticket and spins until the "now serving" counter reaches its number,
// so contenders are granted the lock in the exact order they arrived.
// Grounded on defs.h's ticket_lock forward declaration; the source never
// carries a body for it, so this implementation supplies one fresh per
// §9/§12's "*init constructs a fresh lock instance" decision.
type TicketLock struct {
	name    string
	next    uint64 // next ticket to hand out
	serving uint64 // ticket currently allowed through
}

// NewTicketLock returns a free ticket lock.
func NewTicketLock(name string) *TicketLock {
	return &TicketLock{name: name}
}

// Acquire draws a ticket and spins until it is being served.
func (t *TicketLock) Acquire() uint64 {
	my := atomic.AddUint64(&t.next, 1) - 1
	for atomic.LoadUint64(&t.serving) != my {
	}
	return my
}

// Release advances the serving counter, admitting the next ticket holder.
func (t *TicketLock) Release() {
	atomic.AddUint64(&t.serving, 1)
}

// Outstanding reports how many tickets have been drawn but not yet served.
func (t *TicketLock) Outstanding() uint64 {
	return atomic.LoadUint64(&t.next) - atomic.LoadUint64(&t.serving)
}
