// Package system wires the pipeline core, its I-side and D-side cache
// chains, and the multi-ported memory backend into one runnable
// machine driven by a single global tick.
package system

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/archsim-go/mips5sim/cache"
	"github.com/archsim-go/mips5sim/core"
	"github.com/archsim-go/mips5sim/insts"
	"github.com/archsim-go/mips5sim/loader"
	"github.com/archsim-go/mips5sim/mem"
)

const (
	iPort = 0
	dPort = 1
)

// statsCache is implemented by the two stateful cache variants; a
// PassThrough keeps no counters and simply isn't one.
type statsCache interface {
	Stats() cache.Stats
}

// System is a complete, runnable machine: one core, two independent
// cache chains (instruction and data side), and the backend they both
// terminate on.
type System struct {
	cfg *Config

	backend *mem.Backend
	iCache  cache.Port
	dCache  cache.Port
	core    *core.Core

	trace []string
}

// New builds a System from cfg, wiring a fresh register file and a
// two-port memory backend seeded per cfg.Seed, and loading img into
// the backend at its sections' base addresses before the core ever
// ticks.
func New(cfg *Config, img *loader.Image, out io.Writer) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := mem.New(2, cfg.MemPortDelay, mem.WithSeed(cfg.Seed))

	iCache := buildCache(cfg.ICache, cache.NewBackendPort(backend, iPort))
	dCache := buildCache(cfg.DCache, cache.NewBackendPort(backend, dPort))

	rng := rand.New(rand.NewSource(cfg.Seed))
	regs := core.NewRegFile(rng)

	isa := insts.NewTable()
	handler := core.NewDefaultSyscallHandler(out)
	c := core.NewCore(isa, regs, iCache, dCache, backend, core.WithSyscallHandler(handler))

	sys := &System{cfg: cfg, backend: backend, iCache: iCache, dCache: dCache, core: c}

	if img != nil {
		sys.load(img)
		c.SetPC(img.EntryPoint)
	}
	return sys, nil
}

func buildCache(cfg CacheConfig, downstream cache.Port) cache.Port {
	switch cfg.Kind {
	case CacheDirect:
		return cache.NewDirect(cfg.Size, cfg.LineSize, downstream)
	case CacheSetAssoc:
		return cache.NewSetAssoc(cfg.Size, cfg.Ways, cfg.LineSize, downstream)
	default:
		return cache.NewPassThrough(downstream)
	}
}

// load writes a program image's sections into the backend directly,
// bypassing the cache/port handshake, the way an offline loader places
// bytes into physical memory before the machine is ever clocked.
func (s *System) load(img *loader.Image) {
	if len(img.Text.Bytes) > 0 {
		s.backend.WriteDirect(img.Text.BaseAddr, img.Text.Bytes)
	}
	if len(img.Data.Bytes) > 0 {
		s.backend.WriteDirect(img.Data.BaseAddr, img.Data.Bytes)
	}
}

// Tick advances the whole machine by one cycle in a fixed order: the
// core first (its own stages run W before F internally), then both
// cache chains, then the backend. A cache resolving a miss
// additionally ticks its own bound backend lane from inside its Tick;
// the other lanes only advance here, through this last call.
func (s *System) Tick() {
	s.core.Tick()
	s.iCache.Tick()
	s.dCache.Tick()
	s.backend.Tick()
	s.trace = []string{s.core.Linetrace(), s.memTrace()}
}

// Run ticks the machine until the core halts.
func (s *System) Run() {
	for !s.core.Halted() {
		s.Tick()
	}
}

// RunCycles ticks the machine up to n times, stopping early on halt.
func (s *System) RunCycles(n int) {
	for i := 0; i < n && !s.core.Halted(); i++ {
		s.Tick()
	}
}

// Halted reports whether the core has stopped.
func (s *System) Halted() bool { return s.core.Halted() }

// InstCompletionFlag reports whether an instruction retired during the
// most recent tick.
func (s *System) InstCompletionFlag() bool { return s.core.InstCompletionFlag() }

// ROIFlag reports the region-of-interest toggle driven by syscall 88.
func (s *System) ROIFlag() bool { return s.core.ROIFlag() }

// Config returns the configuration the system was built from.
func (s *System) Config() *Config { return s.cfg }

// GetExitStatus is the driver-facing two-value exit poll:
// (true, code) once the core has halted, (false, 0) otherwise.
func (s *System) GetExitStatus() (bool, int32) {
	if !s.core.Halted() {
		return false, 0
	}
	return true, s.core.ExitCode()
}

// Stats returns the core's cycle/instruction counters.
func (s *System) Stats() core.Stats { return s.core.Stats() }

// ICacheStats returns the instruction-side cache's hit/miss counters,
// zero-valued if the I-side is configured PassThrough.
func (s *System) ICacheStats() cache.Stats { return statsOf(s.iCache) }

// DCacheStats returns the data-side cache's hit/miss counters,
// zero-valued if the D-side is configured PassThrough.
func (s *System) DCacheStats() cache.Stats { return statsOf(s.dCache) }

func statsOf(p cache.Port) cache.Stats {
	if sc, ok := p.(statsCache); ok {
		return sc.Stats()
	}
	return cache.Stats{}
}

// Linetrace composes the core's per-stage trace with a memory
// subsystem segment into a "proc | >>=||=>> | mem |" line.
func (s *System) Linetrace() string {
	if len(s.trace) == 0 {
		return ""
	}
	return fmt.Sprintf("%s | >>=||=>> | %s |", s.trace[0], s.trace[1])
}

func (s *System) memTrace() string {
	return "mem"
}
