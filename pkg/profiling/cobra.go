// Package profiling adds CPU and heap profile flags to a cobra command tree.
package profiling

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// CobraProfiler holds the profile destinations chosen by flags.
type CobraProfiler struct {
	cpuProfileFile *os.File
	cpuProfilePath string
	memProfilePath string

	// Out receives the "profile written" notices. Defaults to stderr.
	Out io.Writer
}

// NewCobraProfiler creates a profiler reporting to stderr.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{Out: os.Stderr}
}

// AddFlags adds --cpu-profile and --mem-profile to cmd and hooks the
// profiler into its persistent pre and post run.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuProfilePath, "cpu-profile", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&p.memProfilePath, "mem-profile", "", "Write a heap profile to file on exit")
	cmd.PersistentPreRunE = p.PreRun
	cmd.PersistentPostRun = p.PostRun
}

// PreRun starts CPU profiling when requested.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	if p.cpuProfilePath == "" {
		return nil
	}
	f, err := os.Create(p.cpuProfilePath)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	p.cpuProfileFile = f
	return nil
}

// PostRun stops CPU profiling and writes the heap profile.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	if p.cpuProfileFile != nil {
		pprof.StopCPUProfile()
		p.cpuProfileFile.Close()
		p.cpuProfileFile = nil
		fmt.Fprintf(p.Out, "CPU profile written to %s\n", p.cpuProfilePath)
	}

	if p.memProfilePath == "" {
		return
	}
	f, err := os.Create(p.memProfilePath)
	if err != nil {
		fmt.Fprintf(p.Out, "could not create heap profile: %v\n", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(p.Out, "could not write heap profile: %v\n", err)
		return
	}
	fmt.Fprintf(p.Out, "Heap profile written to %s\n", p.memProfilePath)
}
