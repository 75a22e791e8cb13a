package dsp

import "kiln/internal/engine"

// Stage transforms one signal into another without adding state of its own.
type Stage func(engine.Signal) engine.Signal

// Pipe applies stages to sig left to right. Pure composition; each stage is
// responsible for its own channel shape.
func Pipe(sig engine.Signal, stages ...Stage) engine.Signal {
	for _, s := range stages {
		sig = s(sig)
	}
	return sig
}

// Mix sums signals per sample. The output width is the widest input's width:
// mono inputs broadcast their scalar to every output channel, while a
// multichannel input narrower than the widest contributes only its own
// channels. All-mono input yields a mono sum. The output buffer is reused
// and only reallocated when the width changes.
func Mix(sigs ...engine.Signal) engine.Signal {
	if len(sigs) == 0 {
		return Const(0)
	}
	if len(sigs) == 1 {
		return sigs[0]
	}
	frames := make([]engine.Sample, len(sigs))
	var out []float64
	return func(ctx *engine.Context) engine.Sample {
		width := 1
		for i, sig := range sigs {
			frames[i] = sig(ctx)
			if w := frames[i].Width(); w > width {
				width = w
			}
		}
		if width == 1 {
			sum := 0.0
			for _, f := range frames {
				sum += f.At(0)
			}
			return engine.Mono(sum)
		}
		if len(out) != width {
			out = make([]float64, width)
		} else {
			for i := range out {
				out[i] = 0
			}
		}
		for _, f := range frames {
			if f.IsMono() {
				v := f.At(0)
				for i := range out {
					out[i] += v
				}
				continue
			}
			for i := 0; i < f.Width(); i++ {
				out[i] += f.At(i)
			}
		}
		return engine.Multi(out)
	}
}
