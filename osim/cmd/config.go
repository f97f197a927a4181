package cmd

import (
	"fmt"
	"log"

	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
	"github.com/spf13/pflag"
)

func addKernelFlags(flags *pflag.FlagSet) {
	d := kernel.MakeBuilder().Config()

	flags.Int("frames", d.TotalFrames, "Number of physical frames.")
	flags.Int("page-size", d.PageSize, "Page size in bytes.")
	flags.Float64("speed", float64(d.BaseSpeed),
		"Base delay of automatic transitions in seconds.")
	flags.Float64("inactivity", float64(d.InactivityTimeout),
		"Seconds without user action before switching to auto mode. "+
			"Zero disables the switch.")
	flags.Float64("disk-delay", float64(d.DiskIODelay),
		"Seconds a swap read or write takes.")
	flags.Int64("seed", d.Seed, "Seed of the random generators.")
	flags.Int("pages", d.DefaultNumPages, "Pages of each process.")
	flags.Int("loaded-pages", d.DefaultLoadedPages,
		"Pages loaded when a process is created.")
	flags.Float64("access-delay", float64(d.AccessDelay),
		"Delay between gaining the CPU and the first memory access.")
	flags.Float64("access-interval", float64(d.AccessInterval),
		"Delay between memory accesses.")
	flags.Float64("write-ratio", d.WriteRatio,
		"Fraction of memory accesses that write.")
	flags.Float64("fault-bias", d.FaultBias,
		"Chance that an access targets a page that is not loaded.")
	flags.String("mode", string(d.Mode),
		"Scheduling mode: manual, semi-auto or auto.")
}

// kernelConfig reads the kernel flags.
func kernelConfig(flags *pflag.FlagSet) (kernel.Config, error) {
	cfg := kernel.MakeBuilder().Config()
	var err error
	errs := make([]error, 0)

	seconds := func(name string) sim.VTimeInSec {
		v, e := flags.GetFloat64(name)
		errs = append(errs, e)
		return sim.VTimeInSec(v)
	}
	integer := func(name string) int {
		v, e := flags.GetInt(name)
		errs = append(errs, e)
		return v
	}
	ratio := func(name string) float64 {
		v, e := flags.GetFloat64(name)
		errs = append(errs, e)
		return v
	}

	cfg.TotalFrames = integer("frames")
	cfg.PageSize = integer("page-size")
	cfg.BaseSpeed = seconds("speed")
	cfg.InactivityTimeout = seconds("inactivity")
	cfg.DiskIODelay = seconds("disk-delay")
	cfg.DefaultNumPages = integer("pages")
	cfg.DefaultLoadedPages = integer("loaded-pages")
	cfg.AccessDelay = seconds("access-delay")
	cfg.AccessInterval = seconds("access-interval")
	cfg.WriteRatio = ratio("write-ratio")
	cfg.FaultBias = ratio("fault-bias")

	cfg.Seed, err = flags.GetInt64("seed")
	errs = append(errs, err)

	mode, err := flags.GetString("mode")
	errs = append(errs, err)
	cfg.Mode = scheduler.Mode(mode)

	for _, e := range errs {
		if e != nil {
			return cfg, e
		}
	}

	return cfg, nil
}

// buildKernel creates an engine and a kernel from the flags.
func buildKernel(
	flags *pflag.FlagSet,
	logger *log.Logger,
) (*sim.SerialEngine, *kernel.Comp, error) {
	cfg, err := kernelConfig(flags)
	if err != nil {
		return nil, nil, err
	}

	engine := sim.NewSerialEngine()
	builder := kernel.MakeBuilder().
		WithConfig(cfg).
		WithEngine(engine).
		WithLogger(logger)

	if err := builder.Validate(); err != nil {
		return nil, nil, fmt.Errorf("osim: %w", err)
	}

	return engine, builder.Build("Kernel"), nil
}

// createProcesses makes n processes with priorities cycling from 0.
func createProcesses(k *kernel.Comp, n int) error {
	for i := 0; i < n; i++ {
		if _, err := k.Create(i % 4); err != nil {
			return err
		}
	}

	return nil
}
