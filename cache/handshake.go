// Package cache implements the three cache variants the core talks to
// through a single four-call handshake: PassThrough, a direct-mapped
// L1, and an N-way set-associative L1 with LRU replacement. All three
// share the same request/response shape as the memory backend so a
// cache can sit transparently between the core and the backend, or be
// chained (I-cache, D-cache) against independent backend ports.
package cache

import "github.com/archsim-go/mips5sim/mem"

// Request and Response reuse the backend's shapes so a cache can pass
// them through unchanged on a miss or a pass-through access.
type Request = mem.Request
type Response = mem.Response

// Port is the uniform upstream/downstream interface every cache level
// and the backend port adapter implement.
type Port interface {
	CanReq() bool
	SendReq(req Request)
	HasResp() bool
	RecvResp() Response
	Tick()
}

// BackendPort adapts one lane of a mem.Backend to the Port interface,
// so caches can be built generically against Port without knowing
// whether their downstream is another cache or the backend itself.
type BackendPort struct {
	backend *mem.Backend
	index   int
}

// NewBackendPort binds a cache's downstream to backend port index.
func NewBackendPort(backend *mem.Backend, index int) *BackendPort {
	return &BackendPort{backend: backend, index: index}
}

// CanReq delegates to the bound backend port.
func (p *BackendPort) CanReq() bool { return p.backend.CanReq(p.index) }

// SendReq delegates to the bound backend port.
func (p *BackendPort) SendReq(req Request) { p.backend.SendReq(p.index, req) }

// HasResp delegates to the bound backend port.
func (p *BackendPort) HasResp() bool { return p.backend.HasResp(p.index) }

// RecvResp delegates to the bound backend port.
func (p *BackendPort) RecvResp() Response { return p.backend.RecvResp(p.index) }

// Tick advances only the bound lane's delay countdown. A cache calls
// this while resolving a miss; the system wiring layer still ticks the
// whole backend once per global cycle, and the resulting double
// advance is confined to the one port whose upstream is stalled on the
// refill anyway.
func (p *BackendPort) Tick() { p.backend.TickPort(p.index) }

// Stats tracks hit/miss counters, common to Direct and SetAssoc.
type Stats struct {
	Hits   uint64
	Misses uint64
}
