package dsp

import (
	"math"

	"kiln/internal/engine"
)

const tau = 2 * math.Pi

// Stock helpers. Sources treat their upstream as a frequency (or level)
// signal; transforms treat it as audio. All state lives in the helper pool.

// Sine is a sine oscillator: upstream is frequency in Hz, params[0] is
// amplitude. One slot holds the phase, which is read before it is advanced,
// so the first sample of a fresh oscillator is exactly zero.
var Sine = Lift("sine", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	amp := param(p, 0, 1)
	ph := mem[base]
	mem[base] = wrap(ph + in*ctx.Period)
	return amp * math.Sin(tau*ph)
})

// Saw is a rising sawtooth oscillator, same contract as Sine.
var Saw = Lift("saw", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	amp := param(p, 0, 1)
	ph := mem[base]
	mem[base] = wrap(ph + in*ctx.Period)
	return amp * (2*ph - 1)
})

// Pulse is a pulse oscillator; params are amplitude and pulse width.
var Pulse = Lift("pulse", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	amp := param(p, 0, 1)
	width := clamp(param(p, 1, 0.5), 0.01, 0.99)
	ph := mem[base]
	mem[base] = wrap(ph + in*ctx.Period)
	if ph < width {
		return amp
	}
	return -amp
})

// Noise is a xorshift white noise source scaled by its upstream and
// params[0]. The generator state rides in the slot as raw bits.
var Noise = Lift("noise", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, channel int, p []float64) float64 {
	amp := param(p, 0, 1)
	u := math.Float64bits(mem[base])
	if u == 0 {
		u = uint64(ctx.Frame+int64(base)+1)*0x9E3779B97F4A7C15 | 1
	}
	u ^= u << 13
	u ^= u >> 7
	u ^= u << 17
	mem[base] = math.Float64frombits(u)
	return in * amp * (float64(u)*(2.0/math.MaxUint64) - 1)
})

// Lowpass is a one-pole lowpass; params[0] is cutoff in Hz, clamped to a
// sane range rather than rejected.
var Lowpass = Lift("lpf", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	f := clamp(param(p, 0, 1000), 1, 0.49*ctx.SampleRate)
	c := lpfCoeff(f, ctx.SampleRate)
	mem[base] += (in - mem[base]) * c
	return mem[base]
})

// Highpass is a one-pole highpass; params[0] is cutoff in Hz.
var Highpass = Lift("hpf", Fixed(2), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	f := clamp(param(p, 0, 100), 1, 0.49*ctx.SampleRate)
	c := hpfCoeff(f, ctx.SampleRate)
	y := c * (mem[base] + in - mem[base+1])
	mem[base] = y
	mem[base+1] = in
	return y
})

// SVF is a Chamberlin state-variable filter returning its lowpass output;
// params are cutoff in Hz and resonance Q. Two slots hold the integrators.
var SVF = Lift("svf", Fixed(2), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	// cutoff capped near SR/6 to keep the integrator loop stable
	fc := clamp(param(p, 0, 1000), 1, ctx.SampleRate/6)
	q := clamp(param(p, 1, 0.7), 0.5, 20)
	f := 2 * math.Sin(math.Pi*fc/ctx.SampleRate)
	low, band := mem[base], mem[base+1]
	low += f * band
	high := in - low - band/q
	band += f * high
	mem[base], mem[base+1] = low, band
	return low
})

// Delay is an echo with feedback; params are delay time in seconds (which
// also sizes the line) and feedback amount. The write head is derived from
// the frame counter, the way the engine's tape loops have always addressed
// their buffers, so a rebuilt delay stays aligned with its old contents.
var Delay = Lift("delay",
	func(p []float64, sampleRate float64) int {
		return delayLen(param(p, 0, 0.5), sampleRate)
	},
	func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
		n := delayLen(param(p, 0, 0.5), ctx.SampleRate)
		fb := clamp(param(p, 1, 0), 0, 0.98)
		w := int(ctx.Frame % int64(n))
		r := (w + 1) % n
		y := mem[base+r]
		mem[base+w] = in + y*fb
		return in + y
	})

func delayLen(seconds, sampleRate float64) int {
	return int(clamp(seconds, 0.001, 4)*sampleRate) + 1
}

// Tremolo modulates level with a sine LFO; params are rate in Hz and depth.
var Tremolo = Lift("trem", Fixed(1), func(ctx *engine.Context, in float64, mem []float64, base, _ int, p []float64) float64 {
	rate := clamp(param(p, 0, 4), 0.01, 40)
	depth := clamp(param(p, 1, 0.5), 0, 1)
	ph := mem[base]
	mem[base] = wrap(ph + rate*ctx.Period)
	return in * (1 - depth*(0.5+0.5*math.Sin(tau*ph)))
})

// Gain scales every channel. Pure; ignores the build.
func Gain(_ *engine.Build, up engine.Signal, params ...float64) engine.Signal {
	g := param(params, 0, 1)
	var out []float64
	return func(ctx *engine.Context) engine.Sample {
		in := up(ctx)
		if in.IsMono() {
			return engine.Mono(g * in.At(0))
		}
		if len(out) != in.Width() {
			out = make([]float64, in.Width())
		}
		for i := range out {
			out[i] = g * in.At(i)
		}
		return engine.Multi(out)
	}
}

// Pan places the input in the stereo field with constant-power gains;
// params[0] is position in [-1, 1]. Always returns stereo.
func Pan(_ *engine.Build, up engine.Signal, params ...float64) engine.Signal {
	pos := clamp(param(params, 0, 0), -1, 1)
	l := math.Cos((pos + 1) * math.Pi / 4)
	r := math.Sin((pos + 1) * math.Pi / 4)
	out := make([]float64, 2)
	return func(ctx *engine.Context) engine.Sample {
		in := up(ctx)
		out[0] = l * in.At(0)
		out[1] = r * in.At(1)
		return engine.Multi(out)
	}
}

// Spatial places the input at a fixed point (params are x, y, z) relative to
// the listener position carried by the context: inverse-square attenuation
// plus a stereo spread from the x offset. Always returns stereo.
func Spatial(_ *engine.Build, up engine.Signal, params ...float64) engine.Signal {
	sx := param(params, 0, 0)
	sy := param(params, 1, 0)
	sz := param(params, 2, 0)
	out := make([]float64, 2)
	return func(ctx *engine.Context) engine.Sample {
		in := up(ctx)
		dx := sx - ctx.Pos[0]
		dy := sy - ctx.Pos[1]
		dz := sz - ctx.Pos[2]
		g := 1 / (1 + dx*dx + dy*dy + dz*dz)
		pos := clamp(dx, -1, 1)
		out[0] = g * math.Cos((pos+1)*math.Pi/4) * in.At(0)
		out[1] = g * math.Sin((pos+1)*math.Pi/4) * in.At(1)
		return engine.Multi(out)
	}
}

func lpfCoeff(f, sr float64) float64 {
	return 1 / (1 + 1/(tau*f/sr))
}

func hpfCoeff(f, sr float64) float64 {
	return 1 / (1 + tau*f/sr)
}

// wrap keeps an accumulating phase in [0, 1), in either direction - a
// negative frequency upstream walks the phase downwards.
func wrap(ph float64) float64 {
	if ph < 0 || ph >= 1 {
		return ph - math.Floor(ph)
	}
	return ph
}
