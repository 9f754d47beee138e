package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/archsim-go/mips5sim/cache"
	"github.com/archsim-go/mips5sim/insts"
	"github.com/archsim-go/mips5sim/mem"
)

// undefinedExitCode and unknownSyscallExitCode are the two distinct
// host-level abort codes: one for an instruction word that decodes to
// no recognized mnemonic (or decodes to sra/srav, which Execute
// deliberately leaves without semantics), one for a syscall code
// outside the small recognized set.
const (
	undefinedExitCode      int32 = -127
	unknownSyscallExitCode int32 = -126
)

// Stats tracks simulator performance counters.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	CPI          float64
}

// forwardSnapshot is the {X, M, W} forwarding network captured once at
// the start of a tick, before any stage runs. Decode is the only stage
// that consults it, and it always sees the state as it stood at the
// tick's boundary, even though Writeback/Memory/Execute run earlier in
// the same tick's call order and would otherwise have already mutated
// the very latches this snapshot freezes.
type forwardSnapshot struct {
	X d2xLatch
	M x2mLatch
	W m2wLatch
}

// Core is a cycle-level five-stage in-order MIPS32 pipeline: Fetch,
// Decode, Execute, Memory, Writeback, each ticked once per cycle in
// reverse stage order so a later stage never observes a same-cycle
// write from an earlier one.
type Core struct {
	isa  *insts.Table
	regs *RegFile

	iMem cache.Port
	dMem cache.Port
	umem SyscallMemory

	syscallHandler SyscallHandler

	pc       uint32
	epoch    uint32
	squash   bool
	squashPC uint32

	f2d f2dLatch
	d2x d2xLatch
	x2m x2mLatch
	m2w m2wLatch

	pendingFetch *Response

	readyList [32]int
	blockD    bool

	// Shadow writeback state, committed into live state only once all
	// five stages have run for the current tick.
	rfShadowSet        [32]bool
	rfShadow           [32]uint32
	readyListShadowSet [32]bool
	readyListShadow    [32]int
	blockDShadowSet    bool
	blockDShadow       bool

	halted        bool
	exitCode      int32
	instCompleted bool

	errOut io.Writer

	stats Stats

	trace []string
}

// Request and Response alias the shapes cache.Port moves around.
type Request = cache.Request
type Response = cache.Response

// Option configures a Core at construction time.
type Option func(*Core)

// WithSyscallHandler overrides the default syscall handler.
func WithSyscallHandler(h SyscallHandler) Option {
	return func(c *Core) { c.syscallHandler = h }
}

// WithErrOutput redirects fatal-condition diagnostics away from
// os.Stderr, mainly so tests can capture them.
func WithErrOutput(w io.Writer) Option {
	return func(c *Core) { c.errOut = w }
}

// NewCore wires a register file, an instruction table, an instruction
// and data cache port, and the uncached memory accessor syscalls need,
// into a runnable pipeline.
func NewCore(isa *insts.Table, regs *RegFile, iMem, dMem cache.Port, umem SyscallMemory, opts ...Option) *Core {
	c := &Core{
		isa:  isa,
		regs: regs,
		iMem: iMem,
		dMem: dMem,
		umem: umem,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.syscallHandler == nil {
		c.syscallHandler = NewDefaultSyscallHandler(nopWriter{})
	}
	if c.errOut == nil {
		c.errOut = os.Stderr
	}
	return c
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// SetPC sets the initial program counter.
func (c *Core) SetPC(pc uint32) { c.pc = pc }

// PC returns the current program counter.
func (c *Core) PC() uint32 { return c.pc }

// Halted reports whether the core has stopped fetching new work,
// either via a normal exit syscall or a fatal condition.
func (c *Core) Halted() bool { return c.halted }

// InstCompletionFlag reports whether an instruction retired from
// Writeback during the most recent tick.
func (c *Core) InstCompletionFlag() bool { return c.instCompleted }

// ROIFlag reports the region-of-interest toggle driven by syscall 88.
func (c *Core) ROIFlag() bool { return c.syscallHandler.ROIFlag() }

// ExitCode returns the program's exit status once Halted is true.
func (c *Core) ExitCode() int32 { return c.exitCode }

// Stats returns the running performance counters.
func (c *Core) Stats() Stats {
	s := c.stats
	if s.Instructions > 0 {
		s.CPI = float64(s.Cycles) / float64(s.Instructions)
	}
	return s
}

// Run ticks the core until it halts.
func (c *Core) Run() {
	for !c.halted {
		c.Tick()
	}
}

// RunCycles ticks the core up to n times, stopping early if it halts.
func (c *Core) RunCycles(n int) {
	for i := 0; i < n && !c.halted; i++ {
		c.Tick()
	}
}

// Branch kinds reported to TrainBranch.
const (
	brCond = 1 // conditional branch
	brJump = 2 // unconditional jump, direct or register-indirect
)

// TrainBranch is a branch predictor training hook, called at every
// control-flow resolution point with the resolved next PC and the
// outcome. The pipeline always predicts fall-through, so this is a
// no-op today; a predictor can be plugged in here without touching
// the stage functions.
func (c *Core) TrainBranch(pc, npc uint32, brType int, outcome bool) {}

// initSquash queues a PC redirect. The epoch bump and PC update are
// deferred to the end of the current tick (see Tick): anything already
// fetched this tick keeps its current-epoch tag and is caught as stale
// once that tag is compared against the bumped epoch on a later tick,
// while anything already sitting in Decode this same tick is caught
// immediately via the squash flag itself.
func (c *Core) initSquash(target uint32) {
	if !c.squash {
		c.squash = true
		c.squashPC = target
	}
}

// Tick advances every stage by one cycle.
func (c *Core) Tick() {
	if c.halted {
		return
	}
	c.stats.Cycles++
	c.instCompleted = false

	for i := range c.rfShadowSet {
		c.rfShadowSet[i] = false
		c.readyListShadowSet[i] = false
	}
	c.blockDShadowSet = false

	fwd := forwardSnapshot{X: c.d2x, M: c.x2m, W: c.m2w}

	wbLine := c.doWriteback()
	memLine := c.doMemory()
	exLine := c.doExecute()
	idLine := c.doDecode(fwd)
	ifLine := c.doFetch()

	for i, set := range c.rfShadowSet {
		if set {
			c.regs.Write(uint8(i), c.rfShadow[i])
		}
	}
	for i, set := range c.readyListShadowSet {
		if set {
			c.readyList[i] = c.readyListShadow[i]
		}
	}
	if c.blockDShadowSet {
		c.blockD = c.blockDShadow
	}

	if c.squash {
		c.pc = c.squashPC
		c.epoch++
		c.squash = false
	}

	c.trace = []string{ifLine, idLine, exLine, memLine, wbLine}
}

// Linetrace returns a single line with one " | "-separated segment per
// stage describing what it did this cycle, in Fetch..Writeback order.
func (c *Core) Linetrace() string {
	return strings.Join(c.trace, " | ")
}

// ---- Fetch ----

func (c *Core) doFetch() string {
	if c.f2d.Valid {
		return "IF stall"
	}
	if !c.iMem.CanReq() {
		return "IF wait"
	}
	c.iMem.SendReq(Request{Op: mem.OpRead, Addr: c.pc, Size: 4, Tag: c.epoch})
	c.f2d = f2dLatch{Valid: true, PC: c.pc, NPC: c.pc + 4, Epoch: c.epoch}
	line := fmt.Sprintf("IF 0x%08x", c.pc)
	if c.squash {
		// This fetch is already doomed; it carries the pre-squash epoch.
		line = "IF -"
	}
	c.pc += 4
	return line
}

// ---- Decode ----

func (c *Core) doDecode(fwd forwardSnapshot) string {
	if !c.f2d.Valid || c.d2x.Valid {
		return "ID -"
	}
	haveResp := c.iMem.HasResp() || c.pendingFetch != nil
	if !haveResp || c.blockD {
		return "ID stall"
	}
	if c.pendingFetch == nil {
		resp := c.iMem.RecvResp()
		c.pendingFetch = &resp
	}
	resp := c.pendingFetch

	squashed := resp.Tag < c.epoch || c.squash
	if squashed {
		c.d2x = d2xLatch{Valid: true, Squashed: true, PC: c.f2d.PC, NPC: c.f2d.NPC, Mnemonic: "-"}
		c.pendingFetch = nil
		c.f2d.Clear()
		return "ID squash"
	}

	word := leWord(resp.Data)
	opcode := (word >> 26) & 0x3f
	rs := uint8((word >> 21) & 0x1f)
	rt := uint8((word >> 16) & 0x1f)
	cond := (word >> 16) & 0x1f
	rd := uint8((word >> 11) & 0x1f)
	shamt := uint8((word >> 6) & 0x1f)
	funct := word & 0x3f
	imm16 := word & 0xffff
	imm26 := word & 0x3ffffff

	def, ok := c.isa.Decode(opcode, funct, cond)
	mnemonic := def.Mnemonic
	if !ok {
		mnemonic = "undef"
	}

	readsRs, readsRt, writesRd, writesRt := false, false, false, false
	if ok {
		if mnemonic == "jal" {
			writesRd = true
			rd = 31
		}
		for _, tok := range strings.Split(def.Syntax, ",") {
			switch tok {
			case "d":
				if rd != 0 {
					writesRd = true
				}
			case "T":
				if rt != 0 {
					writesRt = true
				}
			case "s", "m":
				readsRs = true
			case "t":
				readsRt = true
			}
		}
	}

	rsSrc := c.resolveSrc(readsRs, rs, fwd)
	rtSrc := c.resolveSrc(readsRt, rt, fwd)
	if rsSrc < 0 || rtSrc < 0 {
		return "ID stall(RAW)"
	}

	if mnemonic == "syscall" {
		writers := 0
		for _, n := range c.readyList {
			writers += n
		}
		if writers > 0 {
			return "ID stall(syscall-drain)"
		}
	}

	rsVal := c.readOperand(readsRs, rs, rsSrc, fwd)
	rtVal := c.readOperand(readsRt, rt, rtSrc, fwd)

	if writesRd {
		c.readyList[rd]++
	}
	if writesRt {
		c.readyList[rt]++
	}

	if mnemonic == "syscall" {
		c.blockD = true
	}

	predNPC := c.f2d.NPC
	if mnemonic == "j" || mnemonic == "jal" {
		target := (c.f2d.PC & 0xf0000000) | (imm26 << 2)
		c.TrainBranch(c.f2d.PC, target, brJump, true)
		if target != predNPC {
			c.initSquash(target)
		}
	}

	destReg := rd
	if writesRt {
		destReg = rt
	}

	c.d2x = d2xLatch{
		Valid: true, PC: c.f2d.PC, NPC: predNPC, Inst: word, Mnemonic: mnemonic, IsMem: def.IsMem,
		Rs: rs, Rt: rt, Rd: rd, Shamt: shamt, Imm16: imm16, Imm26: imm26,
		RsValue: rsVal, RtValue: rtVal,
		WritesReg: writesRd || writesRt, DestReg: destReg,
	}
	c.pendingFetch = nil
	c.f2d.Clear()
	return "ID " + mnemonic
}

// resolveSrc returns 0 (register file), 1 (forward from M), 2 (forward
// from W), or -1 (stall) for a single source register read. An X-stage
// writer can never forward in the same cycle; an M-stage writer can
// unless it is still waiting on memory. When the scoreboard says a
// writer is in flight but none of the snapshot records matches, the
// register file copy is current and is read directly.
func (c *Core) resolveSrc(reads bool, reg uint8, fwd forwardSnapshot) int {
	if !reads || c.readyList[reg] == 0 {
		return 0
	}
	switch {
	case fwd.X.Valid && fwd.X.WritesReg && fwd.X.DestReg == reg:
		return -1
	case fwd.M.Valid && fwd.M.WritesReg && fwd.M.DestReg == reg:
		if !fwd.M.IsMem {
			return 1
		}
		return -1
	case fwd.W.Valid && fwd.W.WritesReg && fwd.W.DestReg == reg:
		return 2
	}
	return 0
}

func (c *Core) readOperand(reads bool, reg uint8, src int, fwd forwardSnapshot) uint32 {
	if !reads {
		return 0
	}
	switch src {
	case 1:
		return fwd.M.WbData
	case 2:
		return fwd.W.WbData
	default:
		return c.regs.Read(reg)
	}
}

// ---- Execute ----

func (c *Core) doExecute() string {
	if c.x2m.Valid {
		return "EX stall(mem)"
	}
	if !c.d2x.Valid {
		return "EX -"
	}
	d := c.d2x
	if d.Squashed {
		c.x2m = x2mLatch{Valid: true, Squashed: true, PC: d.PC}
		c.d2x.Clear()
		return "EX squash"
	}

	if d.IsMem && !c.dMem.CanReq() {
		return "EX stall(mem)"
	}

	// sra and srav decode but have no execution semantics; they fault
	// the same way a word with no recognized encoding does. The
	// multiply/divide family never decodes at all and arrives here as
	// "undef" already.
	switch d.Mnemonic {
	case "sra", "srav", "undef":
		fmt.Fprintf(c.errOut, "\n  Error! Encountered an undefined instruction\n")
		fmt.Fprintf(c.errOut, "    - inst: 0x%08x\n", d.Inst)
		fmt.Fprintf(c.errOut, "    - pc  : 0x%08x\n\n", d.PC)
		c.halted = true
		c.exitCode = undefinedExitCode
		c.x2m.Clear()
		c.d2x.Clear()
		return "EX fatal(" + d.Mnemonic + ")"
	}

	out := x2mLatch{Valid: true, PC: d.PC, Mnemonic: d.Mnemonic, IsMem: d.IsMem, WritesReg: d.WritesReg, DestReg: d.DestReg}

	switch d.Mnemonic {
	case "add", "addu":
		out.WbData, out.WbEn = d.RsValue+d.RtValue, true
	case "sub", "subu":
		out.WbData, out.WbEn = d.RsValue-d.RtValue, true
	case "and":
		out.WbData, out.WbEn = d.RsValue&d.RtValue, true
	case "or":
		out.WbData, out.WbEn = d.RsValue|d.RtValue, true
	case "xor":
		out.WbData, out.WbEn = d.RsValue^d.RtValue, true
	case "nor":
		out.WbData, out.WbEn = ^(d.RsValue | d.RtValue), true
	case "addi", "addiu":
		out.WbData, out.WbEn = d.RsValue+signExtend16(d.Imm16), true
	case "andi":
		out.WbData, out.WbEn = d.RsValue&d.Imm16, true
	case "ori":
		out.WbData, out.WbEn = d.RsValue|d.Imm16, true
	case "xori":
		out.WbData, out.WbEn = d.RsValue^d.Imm16, true
	case "lui":
		out.WbData, out.WbEn = d.Imm16<<16, true
	case "sll":
		out.WbData, out.WbEn = d.RsValue<<d.Shamt, true
	case "srl":
		out.WbData, out.WbEn = d.RsValue>>d.Shamt, true
	case "sllv":
		out.WbData, out.WbEn = d.RsValue<<d.RtValue, true
	case "srlv":
		out.WbData, out.WbEn = d.RsValue>>d.RtValue, true

	case "lb", "lh", "lw", "lbu", "lhu":
		ea := d.RsValue + signExtend16(d.Imm16)
		size := memSize(d.Mnemonic)
		c.dMem.SendReq(Request{Op: mem.OpRead, Addr: ea, Size: size})
		out.WbEn = true
		out.MemSize = size
		out.MemSigned = d.Mnemonic == "lb" || d.Mnemonic == "lh"

	case "sb", "sh", "sw":
		ea := d.RsValue + signExtend16(d.Imm16)
		size := memSize(d.Mnemonic)
		c.dMem.SendReq(Request{Op: mem.OpWrite, Addr: ea, Size: size, Data: leBytes(d.RtValue, size)})
		out.WbEn = false

	case "beq":
		c.branch(d, d.RsValue == d.RtValue)
	case "bne":
		c.branch(d, d.RsValue != d.RtValue)
	case "bltz":
		c.branch(d, int32(d.RsValue) < 0)
	case "bgez":
		c.branch(d, int32(d.RsValue) >= 0)
	case "blez":
		c.branch(d, int32(d.RsValue) <= 0)
	case "bgtz":
		c.branch(d, int32(d.RsValue) > 0)

	case "jal":
		out.WbData, out.WbEn = d.PC+4, true
	case "j":
		// target already resolved and squash queued at Decode.
	case "jr":
		target := d.RsValue
		c.TrainBranch(d.PC, target, brJump, true)
		if target != d.NPC {
			c.initSquash(target)
		}

	case "syscall":
		res := c.syscallHandler.Handle(c.regs, c.umem)
		if res.Fatal {
			c.halted = true
			c.exitCode = unknownSyscallExitCode
		} else if res.Exit {
			c.halted = true
			c.exitCode = res.ExitCode
		}
	}

	c.x2m = out
	c.d2x.Clear()
	return "EX " + d.Mnemonic
}

func (c *Core) branch(d d2xLatch, taken bool) {
	target := d.PC + 4 + (signExtend16(d.Imm16) << 2)
	npc := d.NPC
	if taken {
		npc = target
	}
	c.TrainBranch(d.PC, npc, brCond, taken)
	if taken && target != d.NPC {
		c.initSquash(target)
	}
}

func memSize(mnemonic string) int {
	switch mnemonic {
	case "lb", "lbu", "sb":
		return 1
	case "lh", "lhu", "sh":
		return 2
	default:
		return 4
	}
}

// ---- Memory ----

func (c *Core) doMemory() string {
	if !c.x2m.Valid {
		c.m2w.Clear()
		return "MEM -"
	}
	x := c.x2m
	if x.Squashed {
		c.m2w = m2wLatch{Valid: true, Squashed: true, PC: x.PC}
		c.x2m.Clear()
		return "MEM squash"
	}
	wbData := x.WbData
	if x.IsMem {
		if !c.dMem.HasResp() {
			return "MEM stall"
		}
		resp := c.dMem.RecvResp()
		if x.WbEn {
			data := leWordN(resp.Data, x.MemSize)
			if x.MemSigned {
				data = signExtendN(data, x.MemSize*8)
			}
			wbData = data
		}
	}
	c.m2w = m2wLatch{Valid: true, PC: x.PC, Mnemonic: x.Mnemonic, WritesReg: x.WritesReg, DestReg: x.DestReg, WbData: wbData, WbEn: x.WbEn}
	c.x2m.Clear()
	return "MEM " + x.Mnemonic
}

// ---- Writeback ----

func (c *Core) doWriteback() string {
	if !c.m2w.Valid {
		return "WB -"
	}
	w := c.m2w
	c.m2w.Clear()
	if w.Squashed {
		return "WB squash"
	}
	if w.Mnemonic == "syscall" {
		c.blockDShadowSet = true
		c.blockDShadow = false
	}
	if w.WbEn && w.WritesReg {
		c.rfShadowSet[w.DestReg] = true
		c.rfShadow[w.DestReg] = w.WbData
		c.readyListShadowSet[w.DestReg] = true
		c.readyListShadow[w.DestReg] = c.readyList[w.DestReg] - 1
	}
	c.stats.Instructions++
	c.instCompleted = true
	return "WB " + w.Mnemonic
}

// ---- byte helpers ----

func leWord(b []byte) uint32 {
	buf := make([]byte, 4)
	copy(buf, b)
	return binary.LittleEndian.Uint32(buf)
}

func leWordN(b []byte, size int) uint32 {
	buf := make([]byte, 4)
	copy(buf, b[:size])
	return binary.LittleEndian.Uint32(buf)
}

func leBytes(v uint32, size int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf[:size]
}

func signExtend16(v uint32) uint32 {
	return signExtendN(v&0xffff, 16)
}

func signExtendN(v uint32, bits int) uint32 {
	shift := 32 - uint(bits)
	return uint32(int32(v<<shift) >> shift)
}
