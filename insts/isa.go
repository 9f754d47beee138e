// Package insts provides the MIPS32 instruction table consumed by the
// pipeline core: mnemonic lookup by (opcode, funct, cond), operand
// syntax for dependency discovery, instruction-word encoding, register
// name resolution, and data directive element sizes. It does not parse
// assembly text; it only answers questions the decoder, the loader,
// and tests need answered.
package insts

import "fmt"

// Format identifies the bit layout an instruction word uses.
type Format uint8

// MIPS32 instruction formats.
const (
	FormatR Format = iota
	FormatI
	FormatJ
)

// Def describes one recognized mnemonic.
type Def struct {
	Mnemonic string
	Format   Format
	Opcode   uint32
	Funct    uint32 // meaningful for FormatR
	Cond     uint32 // meaningful for opcode 0x01 (bltz/bgez family)
	ShamtSel uint32 // fixed shamt selector for the multiply/divide family
	// Syntax lists operand tokens in MIPS32 textbook notation. The
	// register tokens drive dependency discovery in the pipeline:
	// d = rd (write), T = rt (write), t = rt (read), s = rs (read),
	// m = rs (read, a memory base or indirect target). The remaining
	// tokens (S = shamt, i = imm16, p = branch offset, l = imm26) only
	// shape the assembly syntax and carry no register dependency.
	Syntax string
	IsMem  bool
	// EncodeOnly marks mnemonics the assembler can emit but the
	// decoder does not recognize; such words fault at Execute as
	// undefined instructions.
	EncodeOnly bool
}

// Fields carries the operand values Encode packs into a word.
type Fields struct {
	Rs, Rt, Rd uint32
	Shamt      uint32
	Imm16      uint32
	Imm26      uint32
}

// Table maps recognized mnemonics to their definitions, and provides
// the reverse (opcode, funct, cond) lookup the decoder needs.
type Table struct {
	byMnemonic map[string]Def
}

// NewTable builds the MIPS32 subset table: ALU reg-reg/reg-imm,
// shifts, memory, branches, jumps, syscall, plus the encode-only
// multiply/divide family.
func NewTable() *Table {
	defs := []Def{
		// R-format ALU reg-reg.
		{Mnemonic: "add", Format: FormatR, Funct: 0x20, Syntax: "d,s,t"},
		{Mnemonic: "addu", Format: FormatR, Funct: 0x21, Syntax: "d,s,t"},
		{Mnemonic: "sub", Format: FormatR, Funct: 0x22, Syntax: "d,s,t"},
		{Mnemonic: "subu", Format: FormatR, Funct: 0x23, Syntax: "d,s,t"},
		{Mnemonic: "and", Format: FormatR, Funct: 0x24, Syntax: "d,s,t"},
		{Mnemonic: "or", Format: FormatR, Funct: 0x25, Syntax: "d,s,t"},
		{Mnemonic: "xor", Format: FormatR, Funct: 0x26, Syntax: "d,s,t"},
		{Mnemonic: "nor", Format: FormatR, Funct: 0x27, Syntax: "d,s,t"},
		// R-format multiply/divide family, disambiguated by a fixed
		// shamt selector. The assembler emits these; the decoder does
		// not recognize them, so they fault as undefined at Execute.
		{Mnemonic: "mul", Format: FormatR, Funct: 0x18, ShamtSel: 0x02, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "muh", Format: FormatR, Funct: 0x18, ShamtSel: 0x03, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "mulu", Format: FormatR, Funct: 0x19, ShamtSel: 0x02, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "muhu", Format: FormatR, Funct: 0x19, ShamtSel: 0x03, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "div", Format: FormatR, Funct: 0x1a, ShamtSel: 0x02, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "mod", Format: FormatR, Funct: 0x1a, ShamtSel: 0x03, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "divu", Format: FormatR, Funct: 0x1b, ShamtSel: 0x02, Syntax: "d,s,t", EncodeOnly: true},
		{Mnemonic: "modu", Format: FormatR, Funct: 0x1b, ShamtSel: 0x03, Syntax: "d,s,t", EncodeOnly: true},
		// Shifts. The fixed-shamt trio shifts rs by the shamt field;
		// the variable trio shifts rs by rt.
		{Mnemonic: "sll", Format: FormatR, Funct: 0x00, Syntax: "d,s,S"},
		{Mnemonic: "srl", Format: FormatR, Funct: 0x02, Syntax: "d,s,S"},
		{Mnemonic: "sra", Format: FormatR, Funct: 0x03, Syntax: "d,s,S"},
		{Mnemonic: "sllv", Format: FormatR, Funct: 0x04, Syntax: "d,s,t"},
		{Mnemonic: "srlv", Format: FormatR, Funct: 0x06, Syntax: "d,s,t"},
		{Mnemonic: "srav", Format: FormatR, Funct: 0x07, Syntax: "d,s,t"},
		// Register-indirect jump and syscall.
		{Mnemonic: "jr", Format: FormatR, Funct: 0x08, Syntax: "s"},
		{Mnemonic: "syscall", Format: FormatR, Funct: 0x0c, Syntax: ""},

		// I-format branches using the cond sub-field of opcode 0x01;
		// these compare rs against zero and never read rt.
		{Mnemonic: "bltz", Format: FormatI, Opcode: 0x01, Cond: 0x00, Syntax: "s,p"},
		{Mnemonic: "bgez", Format: FormatI, Opcode: 0x01, Cond: 0x01, Syntax: "s,p"},

		// J-format jumps.
		{Mnemonic: "j", Format: FormatJ, Opcode: 0x02, Syntax: "l"},
		{Mnemonic: "jal", Format: FormatJ, Opcode: 0x03, Syntax: "l"},

		// I-format branches.
		{Mnemonic: "beq", Format: FormatI, Opcode: 0x04, Syntax: "s,t,p"},
		{Mnemonic: "bne", Format: FormatI, Opcode: 0x05, Syntax: "s,t,p"},
		{Mnemonic: "blez", Format: FormatI, Opcode: 0x06, Syntax: "s,p"},
		{Mnemonic: "bgtz", Format: FormatI, Opcode: 0x07, Syntax: "s,p"},

		// I-format ALU reg-imm.
		{Mnemonic: "addi", Format: FormatI, Opcode: 0x08, Syntax: "T,s,i"},
		{Mnemonic: "addiu", Format: FormatI, Opcode: 0x09, Syntax: "T,s,i"},
		{Mnemonic: "andi", Format: FormatI, Opcode: 0x0c, Syntax: "T,s,i"},
		{Mnemonic: "ori", Format: FormatI, Opcode: 0x0d, Syntax: "T,s,i"},
		{Mnemonic: "xori", Format: FormatI, Opcode: 0x0e, Syntax: "T,s,i"},
		{Mnemonic: "lui", Format: FormatI, Opcode: 0x0f, Syntax: "T,i"},

		// I-format memory: loads write rt and read rs as the base;
		// stores read both rt (the value) and rs (the base).
		{Mnemonic: "lb", Format: FormatI, Opcode: 0x20, Syntax: "T,m", IsMem: true},
		{Mnemonic: "lh", Format: FormatI, Opcode: 0x21, Syntax: "T,m", IsMem: true},
		{Mnemonic: "lw", Format: FormatI, Opcode: 0x23, Syntax: "T,m", IsMem: true},
		{Mnemonic: "lbu", Format: FormatI, Opcode: 0x24, Syntax: "T,m", IsMem: true},
		{Mnemonic: "lhu", Format: FormatI, Opcode: 0x25, Syntax: "T,m", IsMem: true},
		{Mnemonic: "sb", Format: FormatI, Opcode: 0x28, Syntax: "t,m", IsMem: true},
		{Mnemonic: "sh", Format: FormatI, Opcode: 0x29, Syntax: "t,m", IsMem: true},
		{Mnemonic: "sw", Format: FormatI, Opcode: 0x2b, Syntax: "t,m", IsMem: true},
	}

	t := &Table{byMnemonic: make(map[string]Def, len(defs))}
	for _, d := range defs {
		t.byMnemonic[d.Mnemonic] = d
	}
	return t
}

// Lookup returns the Def for a mnemonic and whether it was found.
func (t *Table) Lookup(mnemonic string) (Def, bool) {
	d, ok := t.byMnemonic[mnemonic]
	return d, ok
}

// Decode resolves (opcode, funct, cond) to a mnemonic. The caller
// supplies cond only when opcode == 0x01; for R-format instructions
// funct disambiguates, for J-format only opcode matters. Encode-only
// mnemonics are never returned.
func (t *Table) Decode(opcode, funct, cond uint32) (Def, bool) {
	for _, d := range t.byMnemonic {
		if d.EncodeOnly {
			continue
		}
		switch d.Format {
		case FormatR:
			if opcode == 0 && d.Funct == funct {
				return d, true
			}
		case FormatJ:
			if d.Opcode == opcode {
				return d, true
			}
		case FormatI:
			if d.Opcode != opcode {
				continue
			}
			if opcode == 0x01 && d.Cond != cond {
				continue
			}
			return d, true
		}
	}
	return Def{}, false
}

// Encode packs f into an instruction word for mnemonic, using the
// format the mnemonic's definition prescribes. The multiply/divide
// family forces its fixed shamt selector; the bltz/bgez family forces
// its cond value into the rt field.
func (t *Table) Encode(mnemonic string, f Fields) (uint32, error) {
	d, ok := t.byMnemonic[mnemonic]
	if !ok {
		return 0, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}

	switch d.Format {
	case FormatR:
		shamt := f.Shamt
		if d.ShamtSel != 0 {
			shamt = d.ShamtSel
		}
		return (d.Opcode&0x3f)<<26 | (f.Rs&0x1f)<<21 | (f.Rt&0x1f)<<16 |
			(f.Rd&0x1f)<<11 | (shamt&0x1f)<<6 | (d.Funct & 0x3f), nil
	case FormatJ:
		return (d.Opcode&0x3f)<<26 | (f.Imm26 & 0x3ffffff), nil
	default:
		rt := f.Rt
		if d.Opcode == 0x01 {
			rt = d.Cond
		}
		return (d.Opcode&0x3f)<<26 | (f.Rs&0x1f)<<21 | (rt&0x1f)<<16 |
			(f.Imm16 & 0xffff), nil
	}
}

// RegisterNames maps MIPS32 ABI register names to their indices.
var RegisterNames = map[string]uint32{
	"$zero": 0, "$at": 1,
	"$v0": 2, "$v1": 3,
	"$a0": 4, "$a1": 5, "$a2": 6, "$a3": 7,
	"$t0": 8, "$t1": 9, "$t2": 10, "$t3": 11,
	"$t4": 12, "$t5": 13, "$t6": 14, "$t7": 15,
	"$s0": 16, "$s1": 17, "$s2": 18, "$s3": 19,
	"$s4": 20, "$s5": 21, "$s6": 22, "$s7": 23,
	"$t8": 24, "$t9": 25,
	"$k0": 26, "$k1": 27,
	"$gp": 28, "$sp": 29, "$fp": 30, "$s8": 30, "$ra": 31,
}

// DataDirectiveSize maps an assembler data directive to its element
// size in bytes. The assembler itself lives outside this module, but
// the loader needs these sizes to make sense of a data section's
// layout when a caller hands it directive-tagged data instead of raw
// bytes.
var DataDirectiveSize = map[string]int{
	".byte": 1,
	".half": 2,
	".word": 4,
}
