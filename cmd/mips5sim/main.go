// Package main provides the entry point for mips5sim, a cycle-level
// functional simulator for a 32-bit MIPS-style five-stage in-order
// pipeline.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/archsim-go/mips5sim/loader"
	"github.com/archsim-go/mips5sim/system"
)

var (
	configPath = flag.String("config", "", "path to a system configuration JSON file")
	elfMode    = flag.Bool("elf", false, "load the program argument as a MIPS32 ELF binary")
	dataPath   = flag.String("data", "", "path to a raw data section image (flat mode only)")
	maxCycles  = flag.Int("max-cycles", 10_000_000, "abort the run after this many cycles")
	trace      = flag.Bool("trace", false, "print a per-cycle line trace to stderr")
	verbose    = flag.Bool("v", false, "print a summary of cycles/instructions/cache stats on exit")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mips5sim [options] <program>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	programPath := flag.Arg(0)

	cfg := system.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = system.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading system config: %v\n", err)
			os.Exit(1)
		}
	}

	img, err := loadImage(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	sys, err := system.New(cfg, img, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing system: %v\n", err)
		os.Exit(1)
	}

	for cycles := 0; !sys.Halted() && cycles < *maxCycles; cycles++ {
		sys.Tick()
		if *trace {
			fmt.Fprintln(os.Stderr, sys.Linetrace())
		}
	}

	ok, code := sys.GetExitStatus()
	if !ok {
		fmt.Fprintf(os.Stderr, "Simulation did not exit within %d cycles\n", *maxCycles)
		os.Exit(1)
	}

	if *verbose {
		printSummary(sys)
	}

	os.Exit(int(code))
}

func loadImage(programPath string) (*loader.Image, error) {
	if *elfMode {
		prog, err := loader.LoadELF(programPath)
		if err != nil {
			return nil, err
		}
		return loader.FromELF(prog), nil
	}
	return loader.LoadFlat(programPath, *dataPath)
}

func printSummary(sys *system.System) {
	stats := sys.Stats()
	iStats := sys.ICacheStats()
	dStats := sys.DCacheStats()
	fmt.Fprintf(os.Stderr, "\ncycles=%d instructions=%d cpi=%.3f\n",
		stats.Cycles, stats.Instructions, stats.CPI)
	fmt.Fprintf(os.Stderr, "icache hits=%d misses=%d\n", iStats.Hits, iStats.Misses)
	fmt.Fprintf(os.Stderr, "dcache hits=%d misses=%d\n", dStats.Hits, dStats.Misses)
}
