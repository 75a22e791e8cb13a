package engine

// Context is the per-sample render context handed to every signal. A single
// instance is owned by the engine and re-pointed at each registry entry in
// turn; signals must not retain it across samples.
type Context struct {
	// Time is elapsed seconds since the engine started rendering. It is
	// re-summed each frame from a whole-seconds counter and a sub-second
	// fraction so precision does not degrade over long runs.
	Time float64
	// Period is the duration of one sample, 1/SampleRate.
	Period float64
	// SampleRate in Hz, fixed at construction.
	SampleRate float64
	// Frame counts samples rendered since the engine started.
	Frame int64
	// Pos is the listener position for spatial signals, set by SetPosition.
	Pos [3]float64
	// Name is the signal currently being evaluated. Helpers use it to
	// address their pool memory.
	Name string
	// State is the signal's own slab of the signal-state arena.
	State []float64

	eng *Engine
}

// Claim returns the base offset of a helper-pool block of at least size
// slots, addressed by the active signal's name, the helper kind and the
// helper's construction ordinal. Repeated claims with the same key return
// the same block. On exhaustion it reports false and the helper is expected
// to fall silent rather than fault.
func (c *Context) Claim(kind string, ordinal, size int) (int, bool) {
	b, ok := c.eng.pool.claim(helperKey{name: c.Name, kind: kind, ord: ordinal}, size)
	return b.off, ok
}

// Pool exposes the helper arena. Helpers address it only inside blocks
// returned by Claim.
func (c *Context) Pool() []float64 {
	return c.eng.pool.buf
}

// Signal is a currently-sounding callable: one Context in, one Sample out.
// A signal may touch only its own State slice and pool blocks it has
// claimed through the context.
type Signal func(*Context) Sample
