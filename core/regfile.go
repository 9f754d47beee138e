// Package core provides the cycle-accurate five-stage pipelined MIPS32
// processor model: register file, pipeline latches, decode/execute
// semantics, hazard and forwarding control, and syscall emulation.
package core

import "math/rand"

// RegFile is the MIPS32 general-purpose register file. Register 0 is
// hard-wired to zero; all other registers are arbitrary at reset,
// matching an un-initialized hardware register file, except $sp which
// conventionally starts pointing near the top of the address space.
type RegFile struct {
	regs [32]uint32
}

// NewRegFile creates a register file with every register filled with
// arbitrary bits from rng, except $zero (hard-wired 0) and $sp
// (seeded to the default stack top).
func NewRegFile(rng *rand.Rand) *RegFile {
	rf := &RegFile{}
	for i := range rf.regs {
		rf.regs[i] = rng.Uint32()
	}
	rf.regs[0] = 0
	rf.regs[29] = 0x80000000
	return rf
}

// Read returns a register's value. Register 0 always reads zero.
func (r *RegFile) Read(reg uint8) uint32 {
	if reg == 0 {
		return 0
	}
	return r.regs[reg]
}

// Write stores a value into a register. Writes to register 0 are
// silently discarded.
func (r *RegFile) Write(reg uint8, value uint32) {
	if reg == 0 {
		return
	}
	r.regs[reg] = value
}
