// Package sink binds the engine's pull contract to an audio output device.
// A sink owns the render clock: it calls pull once per block, at the pace
// the device drains, on a single goroutine.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Pull produces the next interleaved stereo block. Supplied by the engine.
type Pull func() []float32

// Sink drives blocks from pull to a device until the context is cancelled.
type Sink interface {
	Run(ctx context.Context, pull Pull) error
	Name() string
}

// Open selects a backend by name: "portaudio" or "sdl2".
func Open(backend string, sampleRate float64, blockFrames int, log *zap.Logger) (Sink, error) {
	switch backend {
	case "portaudio":
		return &paSink{sampleRate: sampleRate, frames: blockFrames, log: log}, nil
	case "sdl2":
		return &sdlSink{sampleRate: sampleRate, frames: blockFrames, log: log}, nil
	default:
		return nil, fmt.Errorf("sink: unknown backend %q", backend)
	}
}
