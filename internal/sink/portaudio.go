// portaudio backend
package sink

import (
	"context"
	"fmt"

	pa "github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

type paSink struct {
	sampleRate float64
	frames     int
	log        *zap.Logger
}

func (s *paSink) Name() string { return "portaudio" }

func (s *paSink) Run(ctx context.Context, pull Pull) error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("sink: portaudio init: %w", err)
	}
	defer pa.Terminate()

	dev, err := pa.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("sink: default output: %w", err)
	}
	buf := make([]float32, s.frames*2)
	stream, err := pa.OpenDefaultStream(0, 2, s.sampleRate, s.frames, &buf)
	if err != nil {
		return fmt.Errorf("sink: open stream: %w", err)
	}
	defer stream.Close()

	s.log.Info("audio output",
		zap.String("backend", "portaudio"),
		zap.String("device", dev.Name),
		zap.Float64("sample_rate", s.sampleRate),
		zap.Int("block_frames", s.frames))

	if err := stream.Start(); err != nil {
		return fmt.Errorf("sink: start stream: %w", err)
	}
	defer stream.Stop()

	for ctx.Err() == nil {
		copy(buf, pull())
		if err := stream.Write(); err != nil {
			// underflows recover on the next write; anything else ends the run
			if err == pa.OutputUnderflowed {
				s.log.Warn("output underflow")
				continue
			}
			return fmt.Errorf("sink: write: %w", err)
		}
	}
	return nil
}
