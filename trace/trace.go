/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package trace implements the syscall dispatch table, per-process
// telemetry, and the global invocation log. Grounded on
// original_source/syscall.c: the syscalls_string name table, the
// syscalls[] function-pointer table, fill_arglist's per-syscall argument
// snapshotting, and syscall()'s dispatch/record/count sequence.
//
// syscall.c keeps two independently-advancing per-process linked lists —
// a "datelist" of call timestamps and an "arglist" of argument snapshots
// — both kalloc'd per call and never freed (spec.md §9 flags both the
// leak and the fact that the two lists can silently drift out of step
// with each other if one is walked without the other). This package
// instead keeps one Record per invocation carrying both the timestamp and
// the argument snapshot together, so there is no second list to drift.
package trace

import (
	"sort"
	"sync"
	"time"
)

// ArgKind tags which field of Arg is meaningful, mirroring
// fill_arglist's per-syscall-number argument-type-tag switch.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgInt
	ArgString
	ArgPointer
)

// Arg is one snapshotted syscall argument.
type Arg struct {
	Kind ArgKind
	I    int
	S    string
}

func IntArg(v int) Arg        { return Arg{Kind: ArgInt, I: v} }
func StringArg(v string) Arg  { return Arg{Kind: ArgString, S: v} }
func PointerArg(addr int) Arg { return Arg{Kind: ArgPointer, I: addr} }

// Record is one syscall invocation: the combined replacement for
// syscall.c's separate datelist/arglist nodes.
type Record struct {
	Seq     uint64
	Pid     int
	Syscall string
	Time    time.Time
	Args    []Arg
	Ret     int
	Err     error
}

// Handler executes one syscall's body. Registered per-name by whatever
// component owns that syscall (proc, sched, shm, the kernel itself).
type Handler func(pid int, args []Arg) (int, error)

// Tracer is the syscall dispatch table plus telemetry, the reframing of
// syscall.c's global syscalls[]/syscalls_string arrays and ptable-adjacent
// per-process counters into an explicit object (spec.md §9).
type Tracer struct {
	mu       sync.Mutex
	handlers map[string]Handler
	seq      uint64
	global   []Record
	byPid    map[int][]Record
	counts   map[int]map[string]int
}

// New returns an empty Tracer with no syscalls registered yet.
func New() *Tracer {
	return &Tracer{
		handlers: make(map[string]Handler),
		byPid:    make(map[int][]Record),
		counts:   make(map[int]map[string]int),
	}
}

// Register installs the handler for a named syscall, e.g. "chtickets" or
// "shm_open". Panics on a duplicate registration — a programming error,
// the same class syscall.c's own build-time syscalls[] table assembly
// would catch as a duplicate SYS_ constant.
func (tr *Tracer) Register(name string, h Handler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, dup := tr.handlers[name]; dup {
		panic("trace: duplicate syscall registration: " + name)
	}
	tr.handlers[name] = h
}

// ErrUnknownSyscall is returned (matching syscall()'s "unknown sys call"
// diagnostic path, which stores -1 in eax) when name has no handler.
type ErrUnknownSyscall string

func (e ErrUnknownSyscall) Error() string { return "trace: unknown syscall: " + string(e) }

// Dispatch invokes the named syscall for pid with args, recording one
// Record to both the global invocation log and pid's own telemetry
// regardless of whether the call succeeds — syscall.c logs the call
// before fill_arglist even looks at the return value.
func (tr *Tracer) Dispatch(pid int, name string, args ...Arg) (int, error) {
	tr.mu.Lock()
	h, ok := tr.handlers[name]
	tr.mu.Unlock()
	if !ok {
		tr.record(pid, name, args, -1, ErrUnknownSyscall(name))
		return -1, ErrUnknownSyscall(name)
	}
	ret, err := h(pid, args)
	tr.record(pid, name, args, ret, err)
	return ret, err
}

func (tr *Tracer) record(pid int, name string, args []Arg, ret int, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.seq++
	rec := Record{
		Seq:     tr.seq,
		Pid:     pid,
		Syscall: name,
		Time:    time.Now(),
		Args:    args,
		Ret:     ret,
		Err:     err,
	}
	tr.global = append(tr.global, rec)
	tr.byPid[pid] = append(tr.byPid[pid], rec)
	if tr.counts[pid] == nil {
		tr.counts[pid] = make(map[string]int)
	}
	tr.counts[pid][name]++
}

// InvokedSyscalls implements invoked_syscalls(pid): the ordered list of
// every call pid has made, timestamp and argument snapshot together.
func (tr *Tracer) InvokedSyscalls(pid int) []Record {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Record, len(tr.byPid[pid]))
	copy(out, tr.byPid[pid])
	return out
}

// GetCount implements get_count(pid, name): how many times pid has
// invoked the named syscall.
func (tr *Tracer) GetCount(pid int, name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if m := tr.counts[pid]; m != nil {
		return m[name]
	}
	return 0
}

// TotalCount returns pid's call count summed across all syscalls, the
// figure procdump()'s debug line prints. The get_count syscall does not
// use it: without a syscall name it returns -1.
func (tr *Tracer) TotalCount(pid int) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	total := 0
	for _, n := range tr.counts[pid] {
		total += n
	}
	return total
}

// LogSyscalls implements log_syscalls(): the entire global invocation
// log in call order, the Go replacement for syscall.c's node-by-node walk
// of its global linked list.
func (tr *Tracer) LogSyscalls() []Record {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Record, len(tr.global))
	copy(out, tr.global)
	return out
}

// SortSyscalls implements sort_syscalls(): a stable copy of the global
// log ordered by syscall name then sequence, supplementing spec.md's
// distillation with the one syscall.c function (sys_sort_syscalls) the
// spec's table names but never describes the ordering for.
func (tr *Tracer) SortSyscalls() []Record {
	recs := tr.LogSyscalls()
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Syscall != recs[j].Syscall {
			return recs[i].Syscall < recs[j].Syscall
		}
		return recs[i].Seq < recs[j].Seq
	})
	return recs
}
