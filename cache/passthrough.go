package cache

// PassThrough forwards the handshake unchanged to a bound downstream
// port. Used when caching is disabled for a given side of the core.
type PassThrough struct {
	downstream Port
}

// NewPassThrough binds a PassThrough cache to its downstream port.
func NewPassThrough(downstream Port) *PassThrough {
	return &PassThrough{downstream: downstream}
}

// CanReq delegates to the downstream port.
func (c *PassThrough) CanReq() bool { return c.downstream.CanReq() }

// SendReq delegates to the downstream port.
func (c *PassThrough) SendReq(req Request) { c.downstream.SendReq(req) }

// HasResp delegates to the downstream port.
func (c *PassThrough) HasResp() bool { return c.downstream.HasResp() }

// RecvResp delegates to the downstream port.
func (c *PassThrough) RecvResp() Response { return c.downstream.RecvResp() }

// Tick is a no-op: PassThrough holds no state of its own.
func (c *PassThrough) Tick() {}
