package proc

import (
	"errors"

	"github.com/AliEdalat/os-lab-5/lock"
)

var ErrBadTickets = errors.New("proc: tickets must be positive")

// ChTickets implements chtickets(pid, tickets): reassigns a process's
// level-1 lottery ticket count, per spec.md §6.
func (t *Table) ChTickets(c *lock.CPU, pid, tickets int) error {
	if tickets <= 0 {
		return ErrBadTickets
	}
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			p.Tickets = tickets
			return nil
		}
	}
	return ErrNotFound
}

// ChPriority implements chpr(pid, priority): reassigns a process's level-3
// strict priority (lower value runs first).
func (t *Table) ChPriority(c *lock.CPU, pid, priority int) error {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			p.Priority = priority
			return nil
		}
	}
	return ErrNotFound
}

// ChMFQLevel implements chmfq(pid, level): moves a process between the
// three MFQ levels directly. The scheduler never changes a level on its
// own; apart from fork's inheritance, this is the only way a process
// moves between levels.
func (t *Table) ChMFQLevel(c *lock.CPU, pid, level int) error {
	if level < 1 || level > 3 {
		return errors.New("proc: MFQ level must be 1, 2, or 3")
	}
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			p.MFQLevel = level
			return nil
		}
	}
	return ErrNotFound
}

// TotalTickets sums the tickets of every Runnable level-1 process,
// mirroring proc.c's totalTickets() — the denominator the scheduler's
// lottery draws against.
func (t *Table) TotalTickets(c *lock.CPU) int {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	total := 0
	for _, p := range t.procs {
		if p.State == Runnable && p.MFQLevel == 1 {
			total += p.Tickets
		}
	}
	return total
}

// RunnableAtLevel returns every Runnable process currently at the given
// MFQ level, in process-table scan order — the candidate set each of the
// scheduler's three MFQ passes picks from.
func (t *Table) RunnableAtLevel(c *lock.CPU, level int) []*Process {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	var out []*Process
	for _, p := range t.procs {
		if p.State == Runnable && p.MFQLevel == level {
			out = append(out, p)
		}
	}
	return out
}

// Runnable returns every Runnable process regardless of level, the
// candidate set for the round-robin policy.
func (t *Table) Runnable(c *lock.CPU) []*Process {
	t.guard.Acquire(c)
	defer t.guard.Release(c)
	var out []*Process
	for _, p := range t.procs {
		if p.State == Runnable {
			out = append(out, p)
		}
	}
	return out
}
