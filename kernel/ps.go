/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AliEdalat/os-lab-5/debug"
)

// DumpPs implements debug.PsDumper: a plain-text process-table snapshot
// (pid, parent, name, state, MFQ level, tickets, priority), the ps()
// introspection spec.md §4.7/§6 names, used by the SIGUSR1 debug dump
// alongside the stack and heap profile. The ps syscall (sysPs) does not
// call it; it logs its own structured records.
func (k *Kernel) DumpPs(w io.Writer) error {
	procs := k.Procs.Snapshot(k.monitorCPU)
	for _, p := range procs {
		if _, err := fmt.Fprintf(w, "%-6d %-6d %-16s %-9s lvl=%d tickets=%-5d pr=%d\n",
			p.Pid, p.ParentPid, p.Name, p.State.String(), p.MFQLevel, p.Tickets, p.Priority); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ debug.PsDumper  = (*Kernel)(nil)
	_ debug.LogDumper = (*Kernel)(nil)
)

// DumpDiagnostics installs HandleDebugSignals for this kernel instance
// (ground: debug/debug.go's SIGUSR1 trap) so a running kernelsim process
// can be asked for a stack trace, heap/CPU profile, ps dump, and
// invocation-log dump without attaching a debugger.
func (k *Kernel) DumpDiagnostics(name string) {
	go debug.HandleDebugSignals(name, k)
}

// DumpInvocationLogFile writes the gzip-compressed global invocation log
// (trace.Tracer.DumpInvocationLog) into dir, tagging the filename with
// this instance's boot id so multiple kernels sharing one dump directory
// never collide. Returns the path written. Invoked automatically by
// debug.DumpDebugFiles, via the debug.LogDumper assertion above, every
// time DumpDiagnostics's SIGUSR1 trap fires.
func (k *Kernel) DumpInvocationLogFile(dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("invocation-%s.jsonl.gz", k.BootID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := k.Trace.DumpInvocationLog(f); err != nil {
		return "", err
	}
	return path, nil
}
