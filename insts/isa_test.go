package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim-go/mips5sim/insts"
)

var _ = Describe("Table", func() {
	var t *insts.Table

	BeforeEach(func() {
		t = insts.NewTable()
	})

	It("looks up R-format mnemonics by funct", func() {
		d, ok := t.Decode(0, 0x20, 0)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("add"))
	})

	It("disambiguates bltz/bgez by cond", func() {
		d, ok := t.Decode(0x01, 0, 0x00)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("bltz"))

		d, ok = t.Decode(0x01, 0, 0x01)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("bgez"))
	})

	It("looks up J-format mnemonics by opcode alone", func() {
		d, ok := t.Decode(0x03, 0, 0)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("jal"))
	})

	It("marks memory instructions", func() {
		d, _ := t.Lookup("lw")
		Expect(d.IsMem).To(BeTrue())

		d, _ = t.Lookup("add")
		Expect(d.IsMem).To(BeFalse())
	})

	It("reports register indices by ABI name", func() {
		Expect(insts.RegisterNames["$sp"]).To(Equal(uint32(29)))
		Expect(insts.RegisterNames["$ra"]).To(Equal(uint32(31)))
		Expect(insts.RegisterNames["$zero"]).To(Equal(uint32(0)))
	})

	It("reports data directive element sizes", func() {
		Expect(insts.DataDirectiveSize[".word"]).To(Equal(4))
		Expect(insts.DataDirectiveSize[".half"]).To(Equal(2))
		Expect(insts.DataDirectiveSize[".byte"]).To(Equal(1))
	})

	It("returns not-ok for an undefined opcode/funct pair", func() {
		_, ok := t.Decode(0, 0x3f, 0)
		Expect(ok).To(BeFalse())
	})

	It("never decodes the encode-only multiply/divide family", func() {
		word, err := t.Encode("mul", insts.Fields{Rd: 3, Rs: 4, Rt: 5})
		Expect(err).NotTo(HaveOccurred())

		funct := word & 0x3f
		_, ok := t.Decode(0, funct, 0)
		Expect(ok).To(BeFalse())
	})

	It("round-trips an R-format encode through decode", func() {
		word, err := t.Encode("add", insts.Fields{Rd: 10, Rs: 8, Rt: 9})
		Expect(err).NotTo(HaveOccurred())
		Expect(word).To(Equal(uint32((8 << 21) | (9 << 16) | (10 << 11) | 0x20)))

		d, ok := t.Decode(word>>26, word&0x3f, (word>>16)&0x1f)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("add"))
	})

	It("round-trips a cond-disambiguated branch encode through decode", func() {
		word, err := t.Encode("bgez", insts.Fields{Rs: 7, Imm16: 0x10})
		Expect(err).NotTo(HaveOccurred())

		d, ok := t.Decode(word>>26, word&0x3f, (word>>16)&0x1f)
		Expect(ok).To(BeTrue())
		Expect(d.Mnemonic).To(Equal("bgez"))
	})

	It("rejects encoding an unknown mnemonic", func() {
		_, err := t.Encode("frobnicate", insts.Fields{})
		Expect(err).To(HaveOccurred())
	})
})
