package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"kiln/internal/dsp"
	"kiln/internal/engine"
)

func newEngine(t *testing.T, blockSize int) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		SampleRate:     48000,
		BlockSize:      blockSize,
		MaxSignals:     16,
		SlotsPerSignal: 16,
		PoolSlots:      1 << 16,
	}, zap.NewNop())
	require.NoError(t, err)
	return e
}

func sine440(b *engine.Build) engine.Signal {
	return dsp.Sine(b, dsp.Const(440), 0.5)
}

func render(e *engine.Engine, blocks int) []float32 {
	var out []float32
	for i := 0; i < blocks; i++ {
		out = append(out, e.NextBlock()...)
	}
	return out
}

func TestEndToEndSine(t *testing.T) {
	e := newEngine(t, 256)
	require.NoError(t, e.Register("x", sine440))

	out := render(e, 2)
	assert.InDelta(t, 0.0, out[0], 1e-9, "first sample of a fresh oscillator")
	assert.InDelta(t, 0.0, out[1], 1e-9)

	period := int(math.Round(48000.0 / 440))
	assert.InDelta(t, out[0], out[2*period], 1e-2, "one period later")
}

func TestPhaseContinuityAcrossReRegister(t *testing.T) {
	interrupted := newEngine(t, 64)
	continuous := newEngine(t, 64)
	require.NoError(t, interrupted.Register("x", sine440))
	require.NoError(t, continuous.Register("x", sine440))

	render(interrupted, 3)
	require.True(t, interrupted.Unregister("x"))
	require.NoError(t, interrupted.Register("x", sine440))

	want := render(continuous, 6)[3*64*2:]
	got := render(interrupted, 3)
	for i := range got {
		require.InDelta(t, want[i], got[i], 1e-9, "sample %d", i)
	}
}

func TestPhaseContinuityWithEqualSizeHelpers(t *testing.T) {
	// sine, lpf and trem all hold one slot each, so their freed blocks are
	// indistinguishable by size; each must still get its own memory back
	pipe := func(b *engine.Build) engine.Signal {
		sig := dsp.Sine(b, dsp.Const(440), 0.5)
		sig = dsp.Lowpass(b, sig, 900)
		return dsp.Tremolo(b, sig, 4, 0.5)
	}
	interrupted := newEngine(t, 64)
	continuous := newEngine(t, 64)
	require.NoError(t, interrupted.Register("x", pipe))
	require.NoError(t, continuous.Register("x", pipe))

	render(interrupted, 3)
	require.True(t, interrupted.Unregister("x"))
	require.NoError(t, interrupted.Register("x", pipe))

	want := render(continuous, 6)[3*64*2:]
	got := render(interrupted, 3)
	for i := range got {
		require.InDelta(t, want[i], got[i], 1e-9, "sample %d", i)
	}
}

func TestSlabStateSurvivesReRegister(t *testing.T) {
	e := newEngine(t, 16)
	counter := func(*engine.Build) engine.Signal {
		return func(ctx *engine.Context) engine.Sample {
			ctx.State[0]++
			return engine.Mono(0)
		}
	}
	require.NoError(t, e.Register("x", counter))
	render(e, 2) // 32 frames counted

	require.True(t, e.Unregister("x"))
	require.NoError(t, e.Register("x", counter))

	var seen float64
	require.NoError(t, e.Register("probe", func(*engine.Build) engine.Signal {
		return func(ctx *engine.Context) engine.Sample { return engine.Mono(0) }
	}))
	e.Unregister("probe")
	require.NoError(t, e.Register("x", func(*engine.Build) engine.Signal {
		return func(ctx *engine.Context) engine.Sample {
			seen = ctx.State[0]
			return engine.Mono(0)
		}
	}))
	render(e, 1)
	assert.Equal(t, 32.0, seen, "slab binding and contents survive unregister")
}

func TestFullResetForgetsState(t *testing.T) {
	e := newEngine(t, 64)
	require.NoError(t, e.Register("x", sine440))
	out := render(e, 3)
	assert.NotZero(t, out[2]) // mid-phase by now

	e.Clear(true)
	require.NoError(t, e.Register("x", sine440))
	out = render(e, 1)
	assert.InDelta(t, 0.0, out[0], 1e-9, "full reset restarts the phase")
}

func TestFaultIsolation(t *testing.T) {
	e := newEngine(t, 64)
	require.NoError(t, e.Register("good", sine440))
	require.NoError(t, e.Register("bad", func(b *engine.Build) engine.Signal {
		return func(ctx *engine.Context) engine.Sample {
			panic("broken live edit")
		}
	}))

	solo := newEngine(t, 64)
	require.NoError(t, solo.Register("good", sine440))

	got := render(e, 2)
	want := render(solo, 2)
	assert.Equal(t, []string{"good"}, e.List(), "faulted signal removed at the block boundary")
	for i := range got {
		require.InDelta(t, want[i], got[i], 1e-9, "sample %d", i)
	}
}

func TestBoundedness(t *testing.T) {
	e := newEngine(t, 128)
	loud := func(b *engine.Build) engine.Signal {
		return dsp.Sine(b, dsp.Const(110), 40)
	}
	require.NoError(t, e.Register("a", loud))
	require.NoError(t, e.Register("b", loud))
	require.NoError(t, e.Register("c", loud))

	for _, s := range render(e, 20) {
		require.Greater(t, float64(s), -1.0)
		require.Less(t, float64(s), 1.0)
	}
}

func TestBlockSizeInvariance(t *testing.T) {
	// stateless signal computed from context time only
	pure := func(*engine.Build) engine.Signal {
		return func(ctx *engine.Context) engine.Sample {
			return engine.Mono(0.3 * math.Sin(2*math.Pi*440*ctx.Time))
		}
	}
	small := newEngine(t, 64)
	large := newEngine(t, 256)
	require.NoError(t, small.Register("x", pure))
	require.NoError(t, large.Register("x", pure))

	got := render(small, 8)
	want := render(large, 2)
	assert.Equal(t, want, got)
}

func TestStereoSignalRouting(t *testing.T) {
	e := newEngine(t, 8)
	require.NoError(t, e.Register("x", func(*engine.Build) engine.Signal {
		frame := []float64{0.25, -0.5}
		return func(*engine.Context) engine.Sample { return engine.Multi(frame) }
	}))
	out := e.NextBlock()
	// the limiter is table-interpolated, good to ~7e-6 of the exact tanh
	assert.InDelta(t, math.Tanh(0.25), float64(out[0]), 1e-5)
	assert.InDelta(t, math.Tanh(-0.5), float64(out[1]), 1e-5)
}

func TestSlabExhaustionRefusesRegister(t *testing.T) {
	e, err := engine.New(engine.Config{
		SampleRate:     48000,
		BlockSize:      16,
		MaxSignals:     1,
		SlotsPerSignal: 4,
		PoolSlots:      64,
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, e.Register("a", sine440))
	err = e.Register("b", sine440)
	require.ErrorIs(t, err, engine.ErrSlabsExhausted)

	// the survivor keeps sounding
	assert.Equal(t, []string{"a"}, e.List())
	render(e, 1)
}

func TestPoolExhaustionDegradesToSilence(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	e, err := engine.New(engine.Config{
		SampleRate:     48000,
		BlockSize:      32,
		MaxSignals:     4,
		SlotsPerSignal: 4,
		PoolSlots:      8, // far too small for a delay line
	}, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, e.Register("echo", func(b *engine.Build) engine.Signal {
		return dsp.Delay(b, dsp.Sine(b, dsp.Const(440), 0.5), 1.0, 0.5)
	}))
	for _, s := range render(e, 2) {
		require.Zero(t, s, "exhausted helpers fall silent, nothing crashes")
	}
	assert.Equal(t, []string{"echo"}, e.List())
	assert.NotZero(t, logs.FilterMessage("helper pool exhausted, refusing claim").Len(),
		"the refusal leaves an error-level record")
}

func TestReRegisterReleasesOldHelpers(t *testing.T) {
	e := newEngine(t, 16)
	wide := func(b *engine.Build) engine.Signal {
		return dsp.Delay(b, dsp.Sine(b, dsp.Const(220), 0.2), 0.5, 0.3)
	}
	require.NoError(t, e.Register("x", wide))
	render(e, 1)
	// re-registering the same name many times must not leak the pool
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Register("x", wide))
		render(e, 1)
	}
}

func TestEnqueueAppliesBetweenBlocks(t *testing.T) {
	e := newEngine(t, 16)
	e.Enqueue(func(e *engine.Engine) {
		_ = e.Register("x", sine440)
	})
	assert.Empty(t, e.List(), "not applied until a block boundary")
	e.NextBlock()
	assert.Equal(t, []string{"x"}, e.List())
}

func TestSetPosition(t *testing.T) {
	e := newEngine(t, 16)
	require.NoError(t, e.Register("near", func(b *engine.Build) engine.Signal {
		return dsp.Spatial(b, dsp.Const(0.5), 0, 0, 0)
	}))
	atOrigin := e.NextBlock()[0]
	e.SetPosition(3, 0, 0)
	afterMove := e.NextBlock()[0]
	assert.Less(t, math.Abs(float64(afterMove)), math.Abs(float64(atOrigin)),
		"moving the listener away attenuates the source")
}
