package config

// KernelConfig is the kernel.cfg schema: boot parameters for the process
// table, shared-memory table, scheduler policy, PRNG seed, the demo
// workload driver, and logging — SPEC_FULL §10.2. gcfg maps each
// struct tag's section/key onto these fields the same way manager/config.go's
// processReadCfg does for the teacher's process manager.
type KernelConfig struct {
	Kernel struct {
		// NPROC is the process table's slot capacity.
		NPROC int
		// MAXSHM is the shared-memory table's slot capacity.
		MAXSHM int
		// MAXSHMPBLOCK caps how many pages a single shared-memory block
		// may hold.
		MAXSHMPBLOCK int
		// Scheduler selects "round-robin" or "mfq". Fixed for the life
		// of the kernel instance once loaded (spec.md §4.3).
		Scheduler string
		// RandSeed seeds the scheduler's lottery PRNG; 0 uses the
		// source's literal default of 12345.
		RandSeed uint32
		// NumCPU is how many simulated CPUs run their own scheduler loop.
		NumCPU int
	}
	Workload struct {
		// ProcessCount is how many worker processes the demo driver
		// keeps alive at once.
		ProcessCount int
		// ForkRate caps new worker forks per second (golang.org/x/time/rate).
		ForkRate float64
		// CrashRate is the fraction (0..1) of workers that exit non-zero,
		// exercising the restart/cooldown path.
		CrashRate      float64
		MaxRestarts    int
		RestartPeriod  int // seconds
		CooldownPeriod int // seconds
	}
	Log struct {
		Level  string
		Target string // "stderr" or a file path
	}
}

// Default returns a KernelConfig with the same defaults the teacher's own
// config carries for an unset value (manager/config.go's
// defaultMaxRestarts/defaultRestartPeriod/defaultCooldownPeriod/defaultLogLevel),
// extended with this kernel's own scheduler/table-sizing defaults.
func Default() *KernelConfig {
	c := &KernelConfig{}
	c.Kernel.NPROC = 64
	c.Kernel.MAXSHM = 10
	c.Kernel.MAXSHMPBLOCK = 4
	c.Kernel.Scheduler = "mfq"
	c.Kernel.RandSeed = 12345
	c.Kernel.NumCPU = 2
	c.Workload.ProcessCount = 4
	c.Workload.ForkRate = 2.0
	c.Workload.CrashRate = 0.1
	c.Workload.MaxRestarts = 3
	c.Workload.RestartPeriod = 10
	c.Workload.CooldownPeriod = 60
	c.Log.Level = "INFO"
	c.Log.Target = "stderr"
	return c
}

// Load reads path into a copy of Default(), so an ini file only needs to
// override the keys it cares about.
func Load(path string) (*KernelConfig, error) {
	c := Default()
	if err := LoadConfigFile(c, path); err != nil {
		return nil, err
	}
	return c, nil
}
