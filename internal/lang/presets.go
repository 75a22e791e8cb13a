package lang

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Presets is a TOML file of named pipelines evaluated at startup, the saved
// equivalent of typing each line by hand:
//
//	[signals]
//	drone = "play drone saw 55 0.2 | lpf 400"
//	hat   = "play hat noise 0.3 | hpf 6000 | trem 8 1"
type Presets struct {
	Signals map[string]string `toml:"signals"`
}

// LoadPresets reads path and evaluates every line. Individual bad lines are
// logged and skipped; only an unreadable file is an error.
func LoadPresets(path string, ev *Evaluator, log *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("presets: %w", err)
	}
	var p Presets
	if err := toml.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("presets %s: %w", path, err)
	}
	for name, line := range p.Signals {
		if _, err := ev.Eval(line); err != nil {
			log.Warn("skipping preset", zap.String("preset", name), zap.Error(err))
		}
	}
	log.Info("presets loaded", zap.String("path", path), zap.Int("count", len(p.Signals)))
	return nil
}
