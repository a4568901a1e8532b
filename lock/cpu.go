/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package lock implements the kernel's low-level locking primitives: a
// spinlock with interrupt-disable nesting, a yielding sleep-lock, a FIFO
// ticket lock, a counting semaphore, and reader/writer locks in both
// reader-preferring and writer-preferring flavors.
//
// None of these block on Go's runtime scheduler the way sync.Mutex does.
// They model a single simulated CPU's notion of "interrupts enabled" and
// hand off actual blocking to a Waiter, which is whatever owns the sleep
// channel namespace (the process table, in this kernel). This keeps the
// package free of any dependency on proc/sched while still letting a
// contended sleep-lock, semaphore, or rwlock put the calling process to
// sleep instead of spinning.
package lock

import "fmt"

// CPU tracks one simulated processor's spinlock nesting depth and the
// interrupt-enable flag saved across that nesting, exactly as xv6's
// struct cpu does with ncli/intena. There is no real interrupt controller
// here: IntEnabled is bookkeeping changed by PushCli/PopCli (and by
// Sti/Cli, which nothing in this kernel calls). The scheduler performs no
// nesting-depth or interrupt-state checks before a context switch.
type CPU struct {
	ID     int
	NCli   int
	IntEna bool // interrupt-enable state saved when NCli went 0->1

	enabled bool // current simulated interrupt-enable flag
}

// NewCPU returns a CPU with interrupts enabled, as a freshly booted core
// has before its idle loop runs the first acquire/release pair.
func NewCPU(id int) *CPU {
	return &CPU{ID: id, enabled: true}
}

// IntEnabled reports the CPU's current simulated interrupt-enable flag.
func (c *CPU) IntEnabled() bool { return c.enabled }

// Sti (“set interrupt flag”) simulates re-enabling interrupts on this CPU.
// Only meaningful outside of any held spinlock; acquiring a lock always
// clears it via PushCli regardless of this call.
func (c *CPU) Sti() { c.enabled = true }

// Cli (“clear interrupt flag”) simulates disabling interrupts directly,
// bypassing the nesting counter. No caller in this kernel uses it.
func (c *CPU) Cli() { c.enabled = false }

// PushCli disables interrupts and bumps the nesting count, saving the
// pre-existing enable state the first time the count leaves zero.
func (c *CPU) PushCli() {
	if c.NCli == 0 {
		c.IntEna = c.enabled
	}
	c.enabled = false
	c.NCli++
}

// PopCli reverses one PushCli, panicking if interrupts are somehow
// enabled while a lock nesting is still believed to be held, or if the
// count underflows — both are programming errors per spec §7.
func (c *CPU) PopCli() {
	if c.enabled {
		panic("popcli - interruptible")
	}
	c.NCli--
	if c.NCli < 0 {
		panic(fmt.Sprintf("popcli: cpu %d nesting underflow", c.ID))
	}
	if c.NCli == 0 {
		c.enabled = c.IntEna
	}
}
