package workload

import (
	"context"
	"testing"
	"time"

	"github.com/AliEdalat/os-lab-5/config"
	"github.com/AliEdalat/os-lab-5/kernel"
	"github.com/AliEdalat/os-lab-5/log"
)

// TestDriverForksAndRestartsWorkers boots a minimal kernel, runs the
// driver for a short window, and checks that the forked workers issued at
// least one traced syscall and that init itself issued none.
func TestDriverForksAndRestartsWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Kernel.NPROC = 32
	// InitBody's reap loop depends on proc.Table.Wait finding init
	// registered under the same cpu identity across every quantum it
	// blocks over, which only one scheduler driving one fixed cpu token
	// can guarantee; see DESIGN.md's note on Wait/Sleep and CPU migration.
	cfg.Kernel.NumCPU = 1
	cfg.Workload.ProcessCount = 3
	cfg.Workload.ForkRate = 50
	cfg.Workload.CrashRate = 0.5
	cfg.Workload.MaxRestarts = 2
	cfg.Workload.RestartPeriod = 1
	cfg.Workload.CooldownPeriod = 1

	k, err := kernel.New(cfg, log.NewDiscardLogger())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}

	d := New(k, cfg, log.NewDiscardLogger())
	initP, err := k.Boot(d.InitBody())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	d.Run(ctx, initP)

	recs := k.Trace.LogSyscalls()
	if len(recs) == 0 {
		t.Fatal("expected the workload driver to have issued at least one traced syscall")
	}
	for _, r := range recs {
		if r.Pid == initP.Pid {
			t.Fatalf("init itself should never issue a traced syscall, got %q", r.Syscall)
		}
	}
}
