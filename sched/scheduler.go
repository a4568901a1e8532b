package sched

import (
	"time"

	"github.com/AliEdalat/os-lab-5/lock"
	"github.com/AliEdalat/os-lab-5/proc"
)

// Policy selects which of proc.c's two scheduler loops a Scheduler runs.
// The choice is fixed for the life of one kernel instance (spec.md §4.3:
// "compile-time" is realized here as a boot-time config value, per
// SPEC_FULL §10.2) — nothing in this package switches policy mid-run.
type Policy int

const (
	RoundRobin Policy = iota
	MFQ
)

// Scheduler drives one simulated CPU's scheduling loop. Each CPU gets its
// own Scheduler instance and its own currentLevel, exactly as proc.c's
// MFQpriority is a variable local to each CPU's own scheduler() call, not
// a single shared global.
type Scheduler struct {
	t            *proc.Table
	policy       Policy
	rng          *RNG
	currentLevel int // 1..3, which MFQ level this cpu checks first next cycle
}

// New returns a Scheduler for table t running the given policy. seed
// feeds the lottery RNG (0 uses proc.c's literal default of 12345).
func New(t *proc.Table, policy Policy, seed uint32) *Scheduler {
	return &Scheduler{t: t, policy: policy, rng: NewRNG(seed), currentLevel: 1}
}

// Run repeatedly performs scheduling decisions on c until stop is closed,
// idling briefly whenever nothing is Runnable — proc.c's scheduler() spins
// the same way, just faster than real hardware would tolerate, since
// there's no HLT instruction to fall back on in userspace Go.
func (s *Scheduler) Run(c *lock.CPU, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !s.Step(c) {
			time.Sleep(time.Millisecond)
		}
	}
}

// Step performs exactly one scheduling decision: pick a process per the
// configured policy, run it for one quantum, and report whether anything
// was picked. Exposed directly (rather than only via Run) so tests can
// drive deterministic decision counts, e.g. the 10,000-decision lottery
// fairness check in spec.md §8.
func (s *Scheduler) Step(c *lock.CPU) bool {
	switch s.policy {
	case MFQ:
		return s.stepMFQ(c)
	default:
		return s.stepRoundRobin(c)
	}
}

// stepRoundRobin picks the first Runnable process in table-scan order and
// runs it, mirroring proc.c's scheduler().
func (s *Scheduler) stepRoundRobin(c *lock.CPU) bool {
	runnable := s.t.Runnable(c)
	if len(runnable) == 0 {
		return false
	}
	s.t.RunOnce(c, runnable[0])
	return true
}

// stepMFQ implements the three-level multilevel-feedback-queue cycle
// described in spec.md §4.3: starting from currentLevel, check level 1
// (lottery), then 2 (FIFO-by-ctime), then 3 (strict priority), wrapping
// around; run the first level with a candidate and remember it as next
// cycle's starting level; if none of the three levels has a candidate,
// report no decision was made (currentLevel wraps back to where it began).
//
// The level-1 selection is a clean two-pass pick-then-run: first total
// the tickets and draw a winner, then run that winner. proc.c's actual
// MFQscheduler reuses the loop variable `p` both to iterate candidates
// and to hold the selected winner, so the ticket subtraction and the
// eventual swtch() can disagree about which process was selected whenever
// the loop is re-entered — spec.md §9 flags this explicitly and asks for
// the fixed two-pass version instead of reproducing the bug.
func (s *Scheduler) stepMFQ(c *lock.CPU) bool {
	for i := 0; i < 3; i++ {
		level := s.currentLevel
		var picked *proc.Process
		switch level {
		case 1:
			picked = s.pickLottery(c)
		case 2:
			picked = s.pickFIFO(c)
		case 3:
			picked = s.pickPriority(c)
		}
		if picked != nil {
			s.currentLevel = level
			s.t.RunOnce(c, picked)
			return true
		}
		s.currentLevel = level%3 + 1
	}
	return false
}

// pickLottery draws a winner among level-1 Runnable processes weighted by
// ticket count: first pass totals tickets, draws a random point in
// [0, total), then a second pass subtracts each candidate's tickets from
// that point until it goes negative — the candidate that crosses zero
// wins. Candidates with zero tickets remaining unpicked never win, and an
// empty candidate set or a zero total both yield no winner.
func (s *Scheduler) pickLottery(c *lock.CPU) *proc.Process {
	candidates := s.t.RunnableAtLevel(c, 1)
	if len(candidates) == 0 {
		return nil
	}
	total := 0
	for _, p := range candidates {
		total += p.Tickets
	}
	if total <= 0 {
		return nil
	}
	ticket := s.rng.Intn(total)
	for _, p := range candidates {
		ticket -= p.Tickets
		if ticket < 0 {
			return p
		}
	}
	// rounding can leave the last candidate as the winner
	return candidates[len(candidates)-1]
}

// pickFIFO returns the level-2 Runnable process with the earliest CTime.
func (s *Scheduler) pickFIFO(c *lock.CPU) *proc.Process {
	candidates := s.t.RunnableAtLevel(c, 2)
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.CTime.Before(best.CTime) {
			best = p
		}
	}
	return best
}

// pickPriority returns the level-3 Runnable process with the lowest
// Priority value, ties broken by process-table scan order.
func (s *Scheduler) pickPriority(c *lock.CPU) *proc.Process {
	candidates := s.t.RunnableAtLevel(c, 3)
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.Priority < best.Priority {
			best = p
		}
	}
	return best
}
