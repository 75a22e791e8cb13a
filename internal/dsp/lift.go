// Package dsp builds stateful, channel-count-agnostic signal processors on
// top of the engine's arenas. Single-channel kernels are written once and
// lifted into multichannel signals; their working memory lives in the helper
// pool, addressed by construction order, so a rebuilt signal with the same
// shape picks up exactly where its previous incarnation left off.
package dsp

import "kiln/internal/engine"

// Proc is a single-channel kernel. It reads its input sample, works inside
// mem[base:base+slots] for its channel, and returns one output sample.
// Kernels clamp out-of-range params rather than failing; audio keeps flowing.
type Proc func(ctx *engine.Context, in float64, mem []float64, base, channel int, params []float64) float64

// Slots reports how many pool slots one channel of a helper needs, given the
// construction params and the sample rate.
type Slots func(params []float64, sampleRate float64) int

// Fixed is a Slots for helpers with a parameter-independent footprint.
func Fixed(n int) Slots {
	return func([]float64, float64) int { return n }
}

// Constructor builds a lifted helper into a signal chain. Applied during
// signal construction, never per sample.
type Constructor func(b *engine.Build, up engine.Signal, params ...float64) engine.Signal

// Lift turns a single-channel kernel into a Constructor. The returned
// constructor takes its ordinal from the build at application time; at each
// sample the lifted signal evaluates its upstream, claims width*slots pool
// slots under (signal, kind, ordinal), and runs the kernel once per channel.
// A mono upstream yields a mono result. If the pool cannot satisfy the claim
// the helper goes silent instead of corrupting anything.
func Lift(kind string, slots Slots, proc Proc) Constructor {
	return func(b *engine.Build, up engine.Signal, params ...float64) engine.Signal {
		per := slots(params, b.SampleRate())
		if per < 1 {
			per = 1
		}
		ord := b.Helper(kind, per)
		var out []float64
		return func(ctx *engine.Context) engine.Sample {
			in := up(ctx)
			w := in.Width()
			base, ok := ctx.Claim(kind, ord, w*per)
			if !ok {
				return engine.Mono(0)
			}
			mem := ctx.Pool()
			if w == 1 {
				return engine.Mono(proc(ctx, in.At(0), mem, base, 0, params))
			}
			if len(out) != w {
				out = make([]float64, w)
			}
			for i := 0; i < w; i++ {
				out[i] = proc(ctx, in.At(i), mem, base+i*per, i, params)
			}
			return engine.Multi(out)
		}
	}
}

// Const is a fixed-value mono signal, the usual upstream for oscillators.
func Const(v float64) engine.Signal {
	return func(*engine.Context) engine.Sample { return engine.Mono(v) }
}

func param(params []float64, i int, def float64) float64 {
	if i < len(params) {
		return params[i]
	}
	return def
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
