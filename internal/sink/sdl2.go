// sdl2 backend
package sink

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
)

type sdlSink struct {
	sampleRate float64
	frames     int
	log        *zap.Logger
}

func (s *sdlSink) Name() string { return "sdl2" }

func (s *sdlSink) Run(ctx context.Context, pull Pull) error {
	if err := sdl.Init(sdl.INIT_AUDIO); err != nil {
		return fmt.Errorf("sink: sdl init: %w", err)
	}
	defer sdl.Quit()

	spec := &sdl.AudioSpec{
		Freq:     int32(s.sampleRate),
		Format:   sdl.AUDIO_F32SYS,
		Channels: 2,
		Samples:  uint16(s.frames),
	}
	dev, err := sdl.OpenAudioDevice("", false, spec, nil, 0)
	if err != nil {
		return fmt.Errorf("sink: open sdl audio: %w", err)
	}
	defer sdl.CloseAudioDevice(dev)

	s.log.Info("audio output",
		zap.String("backend", "sdl2"),
		zap.Float64("sample_rate", s.sampleRate),
		zap.Int("block_frames", s.frames))

	sdl.PauseAudioDevice(dev, false)

	// keep roughly three blocks queued; sleep while the device drains
	target := uint32(3 * s.frames * 2 * 4)
	for ctx.Err() == nil {
		if sdl.GetQueuedAudioSize(dev) > target {
			time.Sleep(time.Millisecond)
			continue
		}
		blk := pull()
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&blk[0])), len(blk)*4)
		if err := sdl.QueueAudio(dev, raw); err != nil {
			return fmt.Errorf("sink: queue audio: %w", err)
		}
	}
	return nil
}
