// kiln is a live-coding synthesizer whose sound state survives its own code.
// It renders audio continuously while signal definitions are replaced over a
// UDP control channel or the local REPL; a replaced definition reattaches to
// the phase, filter and delay-line state of its previous incarnation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"kiln/internal/config"
	"kiln/internal/control"
	"kiln/internal/engine"
	"kiln/internal/lang"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("bad configuration", zap.Error(err))
	}
	log, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("bad log configuration", zap.Error(err))
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("kiln exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	eng, err := engine.New(engine.Config{
		SampleRate:     cfg.SampleRate,
		BlockSize:      cfg.BlockSize,
		MaxSignals:     cfg.MaxSignals,
		SlotsPerSignal: cfg.SlotsPerSignal,
		PoolSlots:      cfg.PoolSlots,
	}, log)
	if err != nil {
		return err
	}

	out, err := sink.Open(cfg.Backend, cfg.SampleRate, cfg.BlockSize, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// the sink goroutine is the sole renderer; everything else talks to the
	// engine through its mailbox
	sinkErr := make(chan error, 1)
	go func() { sinkErr <- out.Run(ctx, eng.NextBlock) }()

	ev := lang.New(eng, log)
	if cfg.PresetPath != "" {
		if err := lang.LoadPresets(cfg.PresetPath, ev, log); err != nil {
			log.Warn("presets not loaded", zap.Error(err))
		}
	}

	go func() {
		if err := control.ServeUDP(ctx, cfg.ControlAddr, ev, log); err != nil {
			log.Error("control channel stopped", zap.Error(err))
		}
	}()

	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		if err := control.REPL(os.Stdin, os.Stdout, ev, log); err != nil {
			log.Error("repl stopped", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
	case <-replDone:
		cancel()
	case err := <-sinkErr:
		cancel()
		return err
	}
	<-sinkErr
	return nil
}
