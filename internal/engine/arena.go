package engine

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"kiln/internal/metrics"
)

// slabTable is the signal-state arena: a fixed float64 buffer divided into
// equal slabs, one per signal name. Name bindings are made by hashing the name
// and probing linearly, and are never removed short of a full reset, so a name
// that leaves and comes back lands on the same memory.
type slabTable struct {
	buf   []float64
	slots int      // per slab
	owner []string // "" marks a free slab
	index map[string]int
	log   *zap.Logger
}

func newSlabTable(maxSignals, slotsPerSignal int, log *zap.Logger) *slabTable {
	return &slabTable{
		buf:   make([]float64, maxSignals*slotsPerSignal),
		slots: slotsPerSignal,
		owner: make([]string, maxSignals),
		index: make(map[string]int, maxSignals),
		log:   log,
	}
}

// bind returns the slab index for name, assigning one on first use.
// It fails only when every slab is held by another name.
func (t *slabTable) bind(name string) (int, bool) {
	if slab, ok := t.index[name]; ok {
		return slab, true
	}
	h := xxhash.Sum64String(name)
	n := uint64(len(t.owner))
	for attempt := uint64(0); attempt < n; attempt++ {
		slab := int((h + attempt) % n)
		if t.owner[slab] == "" {
			t.owner[slab] = name
			t.index[name] = slab
			return slab, true
		}
	}
	t.log.Error("signal state slabs exhausted, refusing binding",
		zap.String("signal", name), zap.Int("slabs", len(t.owner)))
	metrics.AllocFailures.WithLabelValues("slab").Inc()
	return 0, false
}

// slice returns the state view for a slab. Signals must not write outside it.
func (t *slabTable) slice(slab int) []float64 {
	off := slab * t.slots
	return t.buf[off : off+t.slots : off+t.slots]
}

// reset drops every binding and zeroes the arena.
func (t *slabTable) reset() {
	for i := range t.buf {
		t.buf[i] = 0
	}
	for i := range t.owner {
		t.owner[i] = ""
	}
	t.index = make(map[string]int, len(t.owner))
}

// helperKey addresses one stateful helper instance: the owning signal, the
// helper kind, and the position of the helper in the signal's construction
// order. Rebuilding a signal with the same shape reproduces the same keys.
type helperKey struct {
	name string
	kind string
	ord  int
}

type block struct {
	off  int
	size int
}

// pool is the helper arena: a fixed float64 buffer sub-allocated on demand.
// Claims are idempotent per key. Released blocks go to a size-sorted free
// list and are reused whole; adjacent blocks are not coalesced. Each key
// remembers its last block so an identical rebuild reattaches to its own
// memory even when other freed blocks share the size; only then does a claim
// fall back to best-fit.
type pool struct {
	buf   []float64
	bound map[helperKey]block
	last  map[helperKey]block // most recently released block per key
	free  []block             // ascending by size
	high  int                 // bump watermark
	log   *zap.Logger
}

func newPool(slots int, log *zap.Logger) *pool {
	return &pool{
		buf:   make([]float64, slots),
		bound: make(map[helperKey]block),
		last:  make(map[helperKey]block),
		log:   log,
	}
}

// claim returns a block of at least size slots for key. An existing binding
// large enough is returned as is; a smaller one is released and replaced.
// Memory is deliberately not cleared on reuse - a rebuilt signal claiming its
// old keys reads its old state back, which is what keeps phase and delay
// lines continuous across a live edit.
func (p *pool) claim(k helperKey, size int) (block, bool) {
	if size < 1 {
		size = 1
	}
	if b, ok := p.bound[k]; ok {
		if b.size >= size {
			return b, true
		}
		p.freeBlock(b)
		delete(p.bound, k)
	}
	// a returning key takes back the exact block it released, so a rebuilt
	// signal reads its own state and not a same-size neighbour's
	if old, ok := p.last[k]; ok && old.size >= size && p.takeFree(old) {
		delete(p.last, k)
		p.bound[k] = old
		return old, true
	}
	// smallest free block that still fits
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= size })
	if i < len(p.free) {
		b := p.free[i]
		p.free = append(p.free[:i], p.free[i+1:]...)
		p.bound[k] = b
		return b, true
	}
	if p.high+size <= len(p.buf) {
		b := block{off: p.high, size: size}
		p.high += size
		p.bound[k] = b
		return b, true
	}
	p.log.Error("helper pool exhausted, refusing claim",
		zap.String("signal", k.name), zap.String("kind", k.kind),
		zap.Int("ordinal", k.ord), zap.Int("slots", size),
		zap.Int("remaining", len(p.buf)-p.high))
	metrics.AllocFailures.WithLabelValues("pool").Inc()
	return block{}, false
}

// release frees every block bound under name, remembering which key held
// which block for reattachment on a later claim.
func (p *pool) release(name string) {
	for k, b := range p.bound {
		if k.name != name {
			continue
		}
		p.freeBlock(b)
		p.last[k] = b
		delete(p.bound, k)
	}
}

func (p *pool) freeBlock(b block) {
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= b.size })
	p.free = append(p.free, block{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = b
}

// takeFree removes b from the free list, failing when another key has
// claimed it in the meantime.
func (p *pool) takeFree(b block) bool {
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= b.size })
	for ; i < len(p.free) && p.free[i].size == b.size; i++ {
		if p.free[i].off == b.off {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return true
		}
	}
	return false
}

// reset drops all bindings and the free list and zeroes the buffer.
func (p *pool) reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.bound = make(map[helperKey]block)
	p.last = make(map[helperKey]block)
	p.free = nil
	p.high = 0
}

// accounted returns bound, free-listed and untouched slot counts.
// The three always sum to the pool capacity.
func (p *pool) accounted() (bound, freed, remaining int) {
	for _, b := range p.bound {
		bound += b.size
	}
	for _, b := range p.free {
		freed += b.size
	}
	return bound, freed, len(p.buf) - p.high
}
