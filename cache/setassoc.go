package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/archsim-go/mips5sim/mem"
)

type setAssocPendingMiss struct {
	tag    uint32
	orig   Request
	victim *akitacache.Block
	issued bool
}

// SetAssoc is an N-way set-associative L1 cache with LRU replacement,
// bound to one downstream port. Tag storage and LRU ordering are
// delegated to Akita's cache directory; line bytes and the
// miss-penalty/refill handshake are owned here.
type SetAssoc struct {
	lineSize int
	nSets    int
	ways     int

	downstream Port
	directory  *akitacache.DirectoryImpl
	dataStore  [][]byte // indexed by setID*ways + wayID

	stats Stats

	penaltyRem int
	pending    *setAssocPendingMiss
	respBuf    *Response
}

// NewSetAssoc creates an N-way set-associative cache.
func NewSetAssoc(size, ways, lineSize int, downstream Port) *SetAssoc {
	nSets := (size / lineSize) / ways
	total := nSets * ways

	dataStore := make([][]byte, total)
	for i := range dataStore {
		dataStore[i] = make([]byte, lineSize)
	}

	return &SetAssoc{
		lineSize:   lineSize,
		nSets:      nSets,
		ways:       ways,
		downstream: downstream,
		directory:  akitacache.NewDirectory(nSets, ways, lineSize, akitacache.NewLRUVictimFinder()),
		dataStore:  dataStore,
	}
}

func (c *SetAssoc) decompose(addr uint32) (tag uint32, offset int) {
	ls := uint32(c.lineSize)
	offset = int(addr % ls)
	tag = addr / (ls * uint32(c.nSets))
	return
}

func (c *SetAssoc) blockAlignedAddr(addr uint32) uint32 {
	return alignedAddr(addr, c.lineSize)
}

func (c *SetAssoc) blockIndex(b *akitacache.Block) int {
	return b.SetID*c.ways + b.WayID
}

// Stats returns the hit/miss counters.
func (c *SetAssoc) Stats() Stats { return c.stats }

// CanReq is true only when no response, miss penalty, or pending
// refill is outstanding.
func (c *SetAssoc) CanReq() bool {
	return c.respBuf == nil && c.penaltyRem == 0 && c.pending == nil
}

// SendReq looks up the set by block-aligned address; on hit it moves
// the way to MRU and publishes directly, on miss it reserves the LRU
// victim immediately, at miss-detection time, and starts the penalty
// countdown.
func (c *SetAssoc) SendReq(req Request) {
	blockAddr := c.blockAlignedAddr(req.Addr)
	_, offset := c.decompose(req.Addr)

	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		applyAccess(c.dataStore[c.blockIndex(block)], offset, &req)
		resp := echo(req)
		c.respBuf = &resp
		return
	}

	c.stats.Misses++
	c.penaltyRem = MissPenalty

	victim := c.directory.FindVictim(uint64(blockAddr))
	c.pending = &setAssocPendingMiss{tag: blockAddr, orig: req, victim: victim}
}

// Tick mirrors Direct.Tick's penalty/refill protocol, but appends the
// reserved victim way to MRU only once its line is actually installed.
func (c *SetAssoc) Tick() {
	if c.penaltyRem > 0 {
		c.penaltyRem--
		return
	}

	if c.pending != nil && !c.pending.issued {
		lineAddr := alignedAddr(c.pending.orig.Addr, c.lineSize)
		c.downstream.SendReq(Request{Op: mem.OpRead, Addr: lineAddr, Size: c.lineSize, Tag: lineAddr})
		c.pending.issued = true
	}

	c.downstream.Tick()

	if c.pending != nil && c.downstream.HasResp() {
		resp := c.downstream.RecvResp()
		victim := c.pending.victim
		victimData := c.dataStore[c.blockIndex(victim)]
		for i, b := range resp.Data {
			victimData[i] = b & 0xff
		}
		victim.Tag = uint64(c.pending.tag)
		victim.IsValid = true
		victim.IsDirty = false

		_, offset := c.decompose(c.pending.orig.Addr)
		applyAccess(victimData, offset, &c.pending.orig)
		r := echo(c.pending.orig)
		c.respBuf = &r

		c.directory.Visit(victim)
		c.pending = nil
	}
}

// HasResp reports whether a response is buffered for the upstream.
func (c *SetAssoc) HasResp() bool { return c.respBuf != nil }

// RecvResp delivers and clears the buffered response.
func (c *SetAssoc) RecvResp() Response {
	r := *c.respBuf
	c.respBuf = nil
	return r
}
