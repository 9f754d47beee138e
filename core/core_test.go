package core_test

import (
	"bytes"
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim-go/mips5sim/cache"
	"github.com/archsim-go/mips5sim/core"
	"github.com/archsim-go/mips5sim/insts"
	"github.com/archsim-go/mips5sim/mem"
)

func TestCore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Core Suite")
}

const textBase = uint32(0x04000000)

func rFmt(opcode, rs, rt, rd, shamt, funct uint32) uint32 {
	return (opcode << 26) | (rs << 21) | (rt << 16) | (rd << 11) | (shamt << 6) | funct
}

func iFmt(opcode, rs, rt, imm uint32) uint32 {
	return (opcode << 26) | (rs << 21) | (rt << 16) | (imm & 0xffff)
}

func jFmt(opcode, target uint32) uint32 {
	return (opcode << 26) | ((target >> 2) & 0x3ffffff)
}

// mnemonic opcode/funct constants, mirrored from insts.NewTable.
const (
	opAdd    = 0x20
	opAddu   = 0x21
	opAddi   = 0x08
	opAddiu  = 0x09
	opLw     = 0x23
	opSw     = 0x2b
	opBeq    = 0x04
	opJ      = 0x02
	opJal    = 0x03
	opJrF    = 0x08
	opSyscallF = 0x0c
)

func addWord(rd, rs, rt uint32) uint32   { return rFmt(0, rs, rt, rd, 0, opAdd) }
func adduWord(rd, rs, rt uint32) uint32  { return rFmt(0, rs, rt, rd, 0, opAddu) }
func addiuWord(rt, rs, imm uint32) uint32 { return iFmt(opAddiu, rs, rt, imm) }
func lwWord(rt, rs, imm uint32) uint32   { return iFmt(opLw, rs, rt, imm) }
func swWord(rt, rs, imm uint32) uint32   { return iFmt(opSw, rs, rt, imm) }
func beqWord(rs, rt, imm uint32) uint32  { return iFmt(opBeq, rs, rt, imm) }
func jWord(target uint32) uint32         { return jFmt(opJ, target) }
func jrWord(rs uint32) uint32            { return rFmt(0, rs, 0, 0, 0, opJrF) }
func syscallWord() uint32                { return rFmt(0, 0, 0, 0, 0, opSyscallF) }
func luiWord(rt, imm uint32) uint32      { return iFmt(0x0f, 0, rt, imm) }
func oriWord(rt, rs, imm uint32) uint32  { return iFmt(0x0d, rs, rt, imm) }

// harness bundles a Core with directly-addressable instruction and data
// backends so tests can poke machine code and memory in by hand.
type harness struct {
	c     *core.Core
	iBack *mem.Backend
	dBack *mem.Backend
	out   *bytes.Buffer
	errs  *bytes.Buffer
}

func newHarness(portDelay int) *harness {
	iBack := mem.New(1, portDelay, mem.WithSeed(1))
	dBack := mem.New(1, portDelay, mem.WithSeed(2))
	iPort := cache.NewPassThrough(cache.NewBackendPort(iBack, 0))
	dPort := cache.NewPassThrough(cache.NewBackendPort(dBack, 0))

	regs := core.NewRegFile(rand.New(rand.NewSource(42)))
	var out, errs bytes.Buffer
	handler := core.NewDefaultSyscallHandler(&out)
	handler.Err = &errs
	h := &harness{iBack: iBack, dBack: dBack, out: &out, errs: &errs}
	h.c = core.NewCore(insts.NewTable(), regs, iPort, dPort, dBack,
		core.WithSyscallHandler(handler),
		core.WithErrOutput(&errs))
	h.c.SetPC(textBase)
	return h
}

func (h *harness) loadText(words []uint32) {
	for i, w := range words {
		buf := make([]byte, 4)
		buf[0] = byte(w)
		buf[1] = byte(w >> 8)
		buf[2] = byte(w >> 16)
		buf[3] = byte(w >> 24)
		h.iBack.WriteDirect(textBase+uint32(i*4), buf)
	}
}

func (h *harness) runUntilHalt(maxCycles int) {
	for i := 0; i < maxCycles && !h.c.Halted(); i++ {
		h.c.Tick()
		h.iBack.Tick()
		h.dBack.Tick()
	}
}

var _ = Describe("Core", func() {
	It("executes a simple add and writes back the result", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(8, 0, 5),  // $t0 = 5
			addiuWord(9, 0, 7),  // $t1 = 7
			addWord(10, 8, 9),   // $t2 = $t0+$t1
			adduWord(4, 10, 0),  // $a0 = $t2
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("12"))
	})

	It("forwards a producer's result to an adjacent consumer without corrupting the sum", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(8, 0, 1),
			addiuWord(8, 8, 1),
			addiuWord(8, 8, 1),
			addiuWord(8, 8, 1),
			addiuWord(8, 8, 1),
			addiuWord(8, 8, 1), // $t0 should reach 6
			adduWord(4, 8, 0),  // $a0 = $t0
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("6"))
	})

	It("stalls a load-use hazard until the loaded value can forward from writeback", func() {
		h := newHarness(1)
		h.dBack.WriteDirect(0x1000, []byte{0x78, 0x56, 0x34, 0x12}) // little-endian 0x12345678
		h.loadText([]uint32{
			addiuWord(16, 0, 0x1000), // $s0 = 0x1000
			lwWord(8, 16, 0),         // $t0 = mem[0x1000] = 0x12345678
			addWord(10, 8, 8),        // $t2 = $t0+$t0, depends immediately on the load
			adduWord(4, 10, 0),       // $a0 = $t2
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("610839792"))
	})

	It("squashes the fall-through instruction after a taken branch", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(8, 0, 1),      // $t0 = 1
			beqWord(8, 8, 2),        // always taken, skip to pc+4+ (2<<2)=pc+12
			addiuWord(9, 0, 0xBAD),  // squashed, must never execute
			addiuWord(9, 0, 0xBAD),  // squashed (branch delay slot stand-in; no delay slot model here)
			addiuWord(9, 0, 0x600D), // landing instruction: $t1 = 0x600D
			adduWord(4, 9, 0),       // $a0 = $t1
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("24589")) // 0x600D; 0xBAD (2989) would mean the squash failed
	})

	It("squashes a fall-through write after a jr redirect", func() {
		h := newHarness(0)
		target := textBase + 24
		h.loadText([]uint32{
			addiuWord(2, 0, 7),             // $v0 = 7, sentinel that must survive the jump
			luiWord(16, target>>16),        // $s0 = hi(target)
			oriWord(16, 16, target&0xffff), // $s0 |= lo(target)
			jrWord(16),
			addiuWord(2, 0, 999), // must be squashed
			addiuWord(2, 0, 999), // must be squashed
			adduWord(4, 2, 0),    // target: $a0 = $v0
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("7")) // 999 would mean a squashed write reached the register file
	})

	It("exits with the code carried in $a0 on syscall 17", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(4, 0, 42), // $a0 = 42
			addiuWord(2, 0, 17), // $v0 = 17 (exit with code)
			syscallWord(),
		})
		h.runUntilHalt(200)
		Expect(h.c.Halted()).To(BeTrue())
		Expect(h.c.ExitCode()).To(Equal(int32(42)))
	})

	It("halts fatally on an undefined instruction word", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			0xFC000000, // opcode 0x3f, not in the table
		})
		h.runUntilHalt(200)
		Expect(h.c.Halted()).To(BeTrue())
		Expect(h.c.ExitCode()).To(Equal(int32(-127)))
		Expect(h.errs.String()).To(ContainSubstring("undefined instruction"))
		Expect(h.errs.String()).To(ContainSubstring("0xfc000000"))
	})

	It("sign-extends an addiu immediate: adding -1 to $zero wraps to 0xFFFFFFFF", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(8, 0, 0xFFFF), // $t0 = $zero + (-1)
			adduWord(4, 8, 0),       // $a0 = $t0
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("4294967295"))
	})

	It("builds 0xFFFFFFFF from lui then ori", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			luiWord(8, 0xFFFF),
			oriWord(8, 8, 0xFFFF),
			adduWord(4, 8, 0),
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("4294967295"))
	})

	It("round-trips a store then a load through the data path", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(16, 0, 0x2000), // $s0 = 0x2000
			addiuWord(8, 0, 0x1234),  // $t0 = 0x1234
			swWord(8, 16, 0),         // mem[$s0] = $t0
			lwWord(9, 16, 0),         // $t1 = mem[$s0]
			adduWord(4, 9, 0),        // $a0 = $t1
			addiuWord(2, 0, 1),
			syscallWord(), // print $a0
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("4660")) // 0x1234
	})

	It("prints a NUL-terminated string via syscall code 4", func() {
		h := newHarness(0)
		h.dBack.WriteDirect(0x3000, []byte{'h', 'i', 0})
		h.loadText([]uint32{
			addiuWord(4, 0, 0x3000), // $a0 = string address
			addiuWord(2, 0, 4),
			syscallWord(), // print string
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("hi"))
	})

	It("writes a single character via syscall code 11", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(4, 0, 'A'),
			addiuWord(2, 0, 11),
			syscallWord(), // print char
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("A"))
	})

	It("toggles the ROI flag via syscall code 88", func() {
		h := newHarness(0)
		Expect(h.c.ROIFlag()).To(BeFalse())
		h.loadText([]uint32{
			addiuWord(2, 0, 88),
			syscallWord(), // toggle ROI
			addiuWord(2, 0, 10),
			syscallWord(), // exit
		})
		h.runUntilHalt(200)
		Expect(h.c.ROIFlag()).To(BeTrue())
	})

	It("halts fatally on an unknown syscall code", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(2, 0, 99), // no such code
			syscallWord(),
		})
		h.runUntilHalt(200)
		Expect(h.c.Halted()).To(BeTrue())
		Expect(h.c.ExitCode()).To(Equal(int32(-126)))
	})

	It("prints a decimal integer via syscall code 1", func() {
		h := newHarness(0)
		h.loadText([]uint32{
			addiuWord(4, 0, 123),
			addiuWord(2, 0, 1),
			syscallWord(),
			addiuWord(2, 0, 10),
			syscallWord(),
		})
		h.runUntilHalt(200)
		Expect(h.out.String()).To(Equal("123"))
	})
})
