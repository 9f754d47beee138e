package core

// f2dLatch is the Fetch/Decode latch: it records the PC of the
// instruction word requested from the instruction cache, its predicted
// next PC, and the epoch it was fetched under, but not the word itself,
// which hasn't arrived yet.
type f2dLatch struct {
	Valid bool
	PC    uint32
	NPC   uint32 // predicted fall-through PC, pc+4
	Epoch uint32
}

// Clear empties the latch.
func (l *f2dLatch) Clear() { *l = f2dLatch{} }

// d2xLatch is the Decode/Execute latch: a fully decoded instruction
// with its source operands already read (possibly forwarded).
type d2xLatch struct {
	Valid    bool
	Squashed bool

	PC       uint32
	NPC      uint32 // predicted fall-through; Execute compares branch and jr targets against it
	Inst     uint32 // raw word, kept for fatal diagnostics
	Mnemonic string
	IsMem    bool

	Rs, Rt, Rd uint8
	Shamt      uint8
	Imm16      uint32
	Imm26      uint32

	RsValue, RtValue uint32

	WritesReg bool
	DestReg   uint8
}

// Clear empties the latch.
func (l *d2xLatch) Clear() { *l = d2xLatch{} }

// x2mLatch is the Execute/Memory latch.
type x2mLatch struct {
	Valid    bool
	Squashed bool

	PC       uint32
	Mnemonic string
	IsMem    bool

	WritesReg bool
	DestReg   uint8
	WbData    uint32
	WbEn      bool

	MemSize   int
	MemSigned bool
}

// Clear empties the latch.
func (l *x2mLatch) Clear() { *l = x2mLatch{} }

// m2wLatch is the Memory/Writeback latch.
type m2wLatch struct {
	Valid    bool
	Squashed bool

	PC       uint32
	Mnemonic string

	WritesReg bool
	DestReg   uint8
	WbData    uint32
	WbEn      bool
}

// Clear empties the latch.
func (l *m2wLatch) Clear() { *l = m2wLatch{} }
