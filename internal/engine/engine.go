// Package engine is the persistent-state core of kiln: two fixed-capacity
// arenas that outlive the code using them, a deterministic name-to-memory
// binding scheme, and a per-sample render loop that keeps producing audio
// while individual signals are replaced, removed or crash.
package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kiln/internal/metrics"
)

// Config fixes the engine's capacities at construction. None of these can be
// changed on a running engine.
type Config struct {
	SampleRate     float64
	BlockSize      int // frames per output block
	MaxSignals     int // signal-state slabs
	SlotsPerSignal int // float64 slots per slab
	PoolSlots      int // helper pool capacity in float64 slots
}

var (
	ErrSlabsExhausted = errors.New("engine: no free signal state slab")
	ErrNilBuilder     = errors.New("engine: nil signal builder")
)

// Build is the handle a signal builder constructs helpers through. It issues
// the construction ordinals that address helper state, and records the
// ordered requests so the dependency on construction order is visible.
// Reordering helper calls between edits reassigns old memory to different
// helpers; that is inherited behavior, not an invariant.
type Build struct {
	eng  *Engine
	name string
	plan []Request
}

// Request is one recorded helper construction.
type Request struct {
	Kind            string
	Ordinal         int
	SlotsPerChannel int
}

// Helper issues the next ordinal for a helper of the given kind and records
// the request. Called once per helper at construction, never per sample.
func (b *Build) Helper(kind string, slotsPerChannel int) int {
	ord := len(b.plan)
	b.plan = append(b.plan, Request{Kind: kind, Ordinal: ord, SlotsPerChannel: slotsPerChannel})
	return ord
}

// SampleRate is exposed for helpers whose footprint depends on it, such as
// delay lines sized in seconds.
func (b *Build) SampleRate() float64 {
	return b.eng.cfg.SampleRate
}

// Name returns the signal name being (re)built.
func (b *Build) Name() string {
	return b.name
}

// Plan returns the helper requests recorded so far, in construction order.
func (b *Build) Plan() []Request {
	return b.plan
}

// BuildFunc constructs a signal, claiming helper ordinals through the Build.
type BuildFunc func(*Build) Signal

type voice struct {
	name    string
	fn      Signal
	state   []float64
	faulted bool
}

// Engine owns both arenas and the registry. Construct one per process and
// reuse it across live edits; redefining a signal means calling Register
// again on the same engine, which is what lets the new definition reattach
// to the old state.
//
// All methods must be called from the rendering goroutine. Other goroutines
// hand mutations over with Enqueue or Do; queued operations are applied
// between blocks, never mid-block.
type Engine struct {
	cfg  Config
	log  *zap.Logger
	slab *slabTable
	pool *pool

	voices []*voice // render order
	byName map[string]*voice

	ops chan func(*Engine)

	ctx   Context
	secs  int64
	frac  float64
	frame int64
	out   []float32
}

// New constructs an engine with the given fixed capacities.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("engine: sample rate %v out of range", cfg.SampleRate)
	}
	if cfg.BlockSize < 1 || cfg.MaxSignals < 1 || cfg.SlotsPerSignal < 1 || cfg.PoolSlots < 1 {
		return nil, fmt.Errorf("engine: non-positive capacity in config %+v", cfg)
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		log:    log,
		slab:   newSlabTable(cfg.MaxSignals, cfg.SlotsPerSignal, log),
		pool:   newPool(cfg.PoolSlots, log),
		byName: make(map[string]*voice),
		ops:    make(chan func(*Engine), 64),
		out:    make([]float32, cfg.BlockSize*2),
	}
	e.ctx = Context{
		Period:     1 / cfg.SampleRate,
		SampleRate: cfg.SampleRate,
		eng:        e,
	}
	return e, nil
}

// Config returns the capacities the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Register binds name to a slab, rebuilds the signal and makes it audible.
// If the name is already registered its old helper bindings are released
// first, so a changed pipeline does not leak its predecessor's blocks, while
// the slab binding itself is kept for state continuity. The builder runs with
// a fresh ordinal counter; an unchanged construction order therefore claims
// the same helper keys, and the same memory, as before the edit.
func (e *Engine) Register(name string, build BuildFunc) error {
	if build == nil {
		return ErrNilBuilder
	}
	if _, ok := e.byName[name]; ok {
		e.Unregister(name)
	}
	slab, ok := e.slab.bind(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlabsExhausted, name)
	}
	b := &Build{eng: e, name: name}
	v := &voice{
		name:  name,
		fn:    build(b),
		state: e.slab.slice(slab),
	}
	if v.fn == nil {
		return ErrNilBuilder
	}
	e.voices = append(e.voices, v)
	e.byName[name] = v
	metrics.ActiveSignals.Set(float64(len(e.voices)))
	e.log.Info("signal registered",
		zap.String("signal", name), zap.Int("slab", slab), zap.Int("helpers", len(b.plan)))
	return nil
}

// Play is the live-coding alias for Register.
func (e *Engine) Play(name string, build BuildFunc) error {
	return e.Register(name, build)
}

// Unregister silences name and returns its helper blocks to the free list.
// The slab binding survives, so re-registering the name reattaches to its
// state. Reports whether the name was registered.
func (e *Engine) Unregister(name string) bool {
	v, ok := e.byName[name]
	if !ok {
		return false
	}
	delete(e.byName, name)
	for i, w := range e.voices {
		if w == v {
			e.voices = append(e.voices[:i], e.voices[i+1:]...)
			break
		}
	}
	e.pool.release(name)
	metrics.ActiveSignals.Set(float64(len(e.voices)))
	e.log.Info("signal unregistered", zap.String("signal", name))
	return true
}

// Stop is the live-coding alias for Unregister.
func (e *Engine) Stop(name string) bool {
	return e.Unregister(name)
}

// Clear empties the registry. With full set it also forgets every slab
// binding, drops all pool bindings and zeroes both arenas - the only way a
// name returns to the unbound state.
func (e *Engine) Clear(full bool) {
	for _, v := range e.voices {
		e.pool.release(v.name)
	}
	e.voices = e.voices[:0]
	e.byName = make(map[string]*voice)
	if full {
		e.slab.reset()
		e.pool.reset()
	}
	metrics.ActiveSignals.Set(0)
	e.log.Info("registry cleared", zap.Bool("full", full))
}

// SetPosition moves the listener for spatial signals.
func (e *Engine) SetPosition(x, y, z float64) {
	e.ctx.Pos = [3]float64{x, y, z}
}

// List returns the registered names in render order.
func (e *Engine) List() []string {
	names := make([]string, len(e.voices))
	for i, v := range e.voices {
		names[i] = v.name
	}
	return names
}

// Enqueue hands an operation to the renderer without waiting. It is applied
// before the next block; a full mailbox drops the operation with a warning
// rather than stalling the caller.
func (e *Engine) Enqueue(op func(*Engine)) {
	select {
	case e.ops <- op:
	default:
		e.log.Warn("control mailbox full, dropping operation")
	}
}

// Do hands an operation to the renderer and waits for it to run. Callers on
// the rendering goroutine must call methods directly instead, or they will
// deadlock waiting on themselves.
func (e *Engine) Do(op func(*Engine)) {
	done := make(chan struct{})
	e.ops <- func(e *Engine) {
		op(e)
		close(done)
	}
	<-done
}

func (e *Engine) drainOps() {
	for {
		select {
		case op := <-e.ops:
			op(e)
		default:
			return
		}
	}
}
