package cache

import "github.com/archsim-go/mips5sim/mem"

// MissPenalty is the fixed number of ticks a cache counts down before
// issuing its downstream refill on a miss.
const MissPenalty = 10

type line struct {
	valid bool
	tag   uint32
	data  []byte
}

type pendingMiss struct {
	index  int
	tag    uint32
	orig   Request
	issued bool
}

// Direct is a single-way (direct-mapped) L1 cache bound to one
// downstream port.
type Direct struct {
	lineSize   int
	nLines     int
	downstream Port

	lines []line

	stats Stats

	penaltyRem int
	pending    *pendingMiss
	respBuf    *Response
}

// NewDirect creates a direct-mapped cache of the given total size and
// line size, bound to downstream.
func NewDirect(size, lineSize int, downstream Port) *Direct {
	n := size / lineSize
	lines := make([]line, n)
	for i := range lines {
		lines[i].data = make([]byte, lineSize)
	}
	return &Direct{lineSize: lineSize, nLines: n, downstream: downstream, lines: lines}
}

func (c *Direct) decompose(addr uint32) (index int, tag uint32, offset int) {
	ls := uint32(c.lineSize)
	offset = int(addr % ls)
	index = int((addr / ls) % uint32(c.nLines))
	tag = addr / (ls * uint32(c.nLines))
	return
}

// Stats returns the hit/miss counters.
func (c *Direct) Stats() Stats { return c.stats }

// CanReq is true only when no response, miss penalty, or pending
// refill is outstanding.
func (c *Direct) CanReq() bool {
	return c.respBuf == nil && c.penaltyRem == 0 && c.pending == nil
}

// SendReq performs the lookup; a hit publishes directly to respBuf, a
// miss starts the penalty countdown.
func (c *Direct) SendReq(req Request) {
	index, tag, offset := c.decompose(req.Addr)
	ln := &c.lines[index]

	if ln.valid && ln.tag == tag {
		c.stats.Hits++
		applyAccess(ln.data, offset, &req)
		resp := echo(req)
		c.respBuf = &resp
		return
	}

	c.stats.Misses++
	c.penaltyRem = MissPenalty
	c.pending = &pendingMiss{index: index, tag: tag, orig: req}
}

// Tick advances the miss-penalty countdown, issues the downstream
// refill once the penalty has elapsed, and installs the line once the
// refill response arrives. The downstream memory is not advanced
// while the penalty is still counting down.
func (c *Direct) Tick() {
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
		ln := &c.lines[c.pending.index]
		for i, b := range resp.Data {
			ln.data[i] = b & 0xff
		}
		ln.valid = true
		ln.tag = c.pending.tag

		_, _, offset := c.decompose(c.pending.orig.Addr)
		applyAccess(ln.data, offset, &c.pending.orig)
		r := echo(c.pending.orig)
		c.respBuf = &r

		c.pending = nil
	}
}

// HasResp reports whether a response is buffered for the upstream.
func (c *Direct) HasResp() bool { return c.respBuf != nil }

// RecvResp delivers and clears the buffered response.
func (c *Direct) RecvResp() Response {
	r := *c.respBuf
	c.respBuf = nil
	return r
}

func alignedAddr(addr uint32, lineSize int) uint32 {
	ls := uint32(lineSize)
	return (addr / ls) * ls
}

// applyAccess performs the cache-line-local side effect of req against
// line data at offset: a read slices size bytes into req.Data (used
// only to build the echoed response below); a write stores req.Data
// into the line. Neither touches the backend directly; lines carry no
// dirty bit and are never written back, so a store whose line is later
// evicted is lost.
func applyAccess(lineData []byte, offset int, req *Request) {
	switch req.Op {
	case mem.OpRead:
		req.Data = append([]byte(nil), lineData[offset:offset+req.Size]...)
	case mem.OpWrite:
		for i := 0; i < req.Size; i++ {
			if req.Mask != nil && !req.Mask[i] {
				continue
			}
			lineData[offset+i] = req.Data[i]
		}
	}
}

func echo(req Request) Response {
	return Response{Op: req.Op, Addr: req.Addr, Size: req.Size, Data: req.Data, Mask: req.Mask, Tag: req.Tag}
}
