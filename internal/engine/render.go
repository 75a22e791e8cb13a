package engine

import (
	"math"

	"go.uber.org/zap"

	"kiln/internal/metrics"
)

// NextBlock renders one block of interleaved stereo samples. The returned
// slice is owned by the engine and valid until the next call.
//
// Rendering a block is a single synchronous sequence: queued control
// operations are applied before the first frame, faulted signals are swept
// after the last, and nothing mutates the registry in between. One external
// puller clocks calls at the playback rate.
func (e *Engine) NextBlock() []float32 {
	e.drainOps()
	for f := 0; f < e.cfg.BlockSize; f++ {
		// split time accumulator: the fraction stays small so adding one
		// period to it never loses bits to a large running total
		e.frac += e.ctx.Period
		if e.frac >= 1 {
			e.frac--
			e.secs++
		}
		e.ctx.Time = float64(e.secs) + e.frac
		e.ctx.Frame = e.frame

		var left, right float64
		for _, v := range e.voices {
			if v.faulted {
				continue
			}
			e.ctx.Name = v.name
			e.ctx.State = v.state
			s, ok := e.eval(v)
			if !ok {
				v.faulted = true
				continue
			}
			if s.Width() == 1 {
				m := s.At(0)
				left += m
				right += m
			} else {
				left += s.At(0)
				right += s.At(1)
			}
		}
		e.out[2*f] = float32(softLimit(left))
		e.out[2*f+1] = float32(softLimit(right))
		e.frame++
	}
	e.sweepFaults()
	metrics.BlocksRendered.Inc()
	return e.out
}

// eval invokes one signal with panic containment. A signal that panics is
// reported once and marked for removal; every other signal in the block is
// unaffected. One broken live edit must never silence the engine.
func (e *Engine) eval(v *voice) (s Sample, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("signal fault, removing from registry",
				zap.String("signal", v.name), zap.Any("panic", r))
			metrics.SignalFaults.Inc()
			ok = false
		}
	}()
	return v.fn(&e.ctx), true
}

// sweepFaults removes faulted voices at the block boundary, keeping registry
// mutation out of the per-sample path. Helper blocks are released the same
// way an explicit Unregister would release them.
func (e *Engine) sweepFaults() {
	kept := e.voices[:0]
	for _, v := range e.voices {
		if !v.faulted {
			kept = append(kept, v)
			continue
		}
		delete(e.byName, v.name)
		e.pool.release(v.name)
	}
	if len(kept) != len(e.voices) {
		e.voices = kept
		metrics.ActiveSignals.Set(float64(len(e.voices)))
	}
}

// softLimit is the final safety limiter: a table-interpolated hyperbolic
// tangent, exact outside the table's domain.
func softLimit(x float64) float64 {
	if x < -1 || x > 1 {
		return math.Tanh(x)
	}
	neg := x < 0
	if neg {
		x = -x
	}
	x *= tanhTabWidth - 2
	a := int(x)
	ta := tanhTab[a]
	tb := tanhTab[a+1]
	y := ta + (tb-ta)*(x-float64(a))
	if neg {
		return -y
	}
	return y
}

const tanhTabWidth = 2 << 16

var tanhTab = make([]float64, tanhTabWidth)

func init() {
	for i := range tanhTab {
		tanhTab[i] = math.Tanh(float64(i) / tanhTabWidth)
	}
}
