// Package lang is the evaluator collaborator: it turns textual control lines
// into engine operations. The engine itself never parses anything; malformed
// input stops here and is reported to the caller, never to the render path.
//
// Line syntax:
//
//	play <name> <source> [args] [, <source> [args]]... [| <stage> [args]]...
//	stop <name>
//	clear [full]
//	pos <x> <y> [z]
//	list
//
// Sources: sine, saw, pulse, noise. Stages: gain, lpf, hpf, svf, delay,
// trem, pan, spat. Numeric arguments beyond a word's arity are rejected.
package lang

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"kiln/internal/dsp"
	"kiln/internal/engine"
)

type word struct {
	min, max int // numeric argument count
	freqArg  bool
	build    dsp.Constructor
}

// Sources feed a constant into their constructor: oscillators get their
// frequency (first argument), noise gets unity level.
var sources = map[string]word{
	"sine":  {min: 1, max: 2, freqArg: true, build: dsp.Sine},
	"saw":   {min: 1, max: 2, freqArg: true, build: dsp.Saw},
	"pulse": {min: 1, max: 3, freqArg: true, build: dsp.Pulse},
	"noise": {min: 0, max: 1, build: dsp.Noise},
}

var stages = map[string]word{
	"gain":  {min: 1, max: 1, build: dsp.Gain},
	"lpf":   {min: 1, max: 1, build: dsp.Lowpass},
	"hpf":   {min: 1, max: 1, build: dsp.Highpass},
	"svf":   {min: 1, max: 2, build: dsp.SVF},
	"delay": {min: 1, max: 2, build: dsp.Delay},
	"trem":  {min: 1, max: 2, build: dsp.Tremolo},
	"pan":   {min: 1, max: 1, build: dsp.Pan},
	"spat":  {min: 2, max: 3, build: dsp.Spatial},
}

// Evaluator maps control lines onto one engine. Safe to drive from a control
// goroutine: mutations go through the engine mailbox and apply between blocks.
type Evaluator struct {
	eng *engine.Engine
	log *zap.Logger
}

func New(eng *engine.Engine, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{eng: eng, log: log}
}

// Eval parses and applies one line, returning a short response for the
// operator. Empty lines and #-comments are ignored.
func (ev *Evaluator) Eval(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return "", nil
	}
	cmd, rest := fields[0], fields[1:]
	switch cmd {
	case "play", "register":
		return ev.play(rest)
	case "stop", "unregister":
		if len(rest) != 1 {
			return "", fmt.Errorf("stop wants a signal name")
		}
		name := rest[0]
		ev.eng.Enqueue(func(e *engine.Engine) {
			if !e.Stop(name) {
				ev.log.Warn("stop of unknown signal", zap.String("signal", name))
			}
		})
		return "stopped " + name, nil
	case "clear":
		full := len(rest) == 1 && rest[0] == "full"
		if len(rest) > 1 || (len(rest) == 1 && !full) {
			return "", fmt.Errorf("clear takes at most the word %q", "full")
		}
		ev.eng.Enqueue(func(e *engine.Engine) { e.Clear(full) })
		return "cleared", nil
	case "pos":
		if len(rest) < 2 || len(rest) > 3 {
			return "", fmt.Errorf("pos wants x y [z]")
		}
		coords, err := floats(rest)
		if err != nil {
			return "", err
		}
		var z float64
		if len(coords) == 3 {
			z = coords[2]
		}
		x, y := coords[0], coords[1]
		ev.eng.Enqueue(func(e *engine.Engine) { e.SetPosition(x, y, z) })
		return "ok", nil
	case "list", "ls":
		var names []string
		ev.eng.Do(func(e *engine.Engine) { names = e.List() })
		if len(names) == 0 {
			return "(silence)", nil
		}
		return strings.Join(names, " "), nil
	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

// play parses "name src args [, src args]... [| stage args]..." and
// registers the resulting pipeline under name.
func (ev *Evaluator) play(fields []string) (string, error) {
	if len(fields) < 2 {
		return "", fmt.Errorf("play wants a name and a source")
	}
	name := fields[0]
	if _, ok := sources[name]; ok {
		return "", fmt.Errorf("signal name %q shadows a source", name)
	}
	segments := split(fields[1:], "|")
	srcCalls, err := parseGroup(segments[0], sources, "source")
	if err != nil {
		return "", err
	}
	var stageCalls []call
	for _, seg := range segments[1:] {
		sp, err := parseGroup(seg, stages, "stage")
		if err != nil {
			return "", err
		}
		if len(sp) != 1 {
			return "", fmt.Errorf("one stage per | segment")
		}
		stageCalls = append(stageCalls, sp[0])
	}
	build := pipeline(srcCalls, stageCalls)
	ev.eng.Enqueue(func(e *engine.Engine) {
		if err := e.Play(name, build); err != nil {
			ev.log.Error("play refused", zap.String("signal", name), zap.Error(err))
		}
	})
	return "playing " + name, nil
}

type call struct {
	word word
	args []float64
}

// pipeline assembles the BuildFunc: sources are mixed, stages are piped.
// Construction order is fixed by the line, which is what keeps helper
// ordinals, and therefore helper state, stable across re-evaluation of an
// unchanged line.
func pipeline(srcs []call, stgs []call) engine.BuildFunc {
	return func(b *engine.Build) engine.Signal {
		voices := make([]engine.Signal, len(srcs))
		for i, s := range srcs {
			up := dsp.Const(1)
			args := s.args
			if s.word.freqArg {
				up = dsp.Const(args[0])
				args = args[1:]
			}
			voices[i] = s.word.build(b, up, args...)
		}
		sig := dsp.Mix(voices...)
		for _, s := range stgs {
			stage := s
			sig = dsp.Pipe(sig, func(up engine.Signal) engine.Signal {
				return stage.word.build(b, up, stage.args...)
			})
		}
		return sig
	}
}

// parseGroup parses comma-separated "word num num" runs against a vocabulary.
func parseGroup(fields []string, vocab map[string]word, kind string) ([]call, error) {
	var out []call
	for _, run := range split(fields, ",") {
		if len(run) == 0 {
			return nil, fmt.Errorf("empty %s before a comma", kind)
		}
		w, ok := vocab[run[0]]
		if !ok {
			return nil, fmt.Errorf("unknown %s %q", kind, run[0])
		}
		args, err := floats(run[1:])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, run[0], err)
		}
		if len(args) < w.min || len(args) > w.max {
			return nil, fmt.Errorf("%s %s wants %d to %d arguments, got %d",
				kind, run[0], w.min, w.max, len(args))
		}
		out = append(out, call{word: w, args: args})
	}
	return out, nil
}

func split(fields []string, sep string) [][]string {
	var out [][]string
	cur := []string{}
	for _, f := range fields {
		if f == sep {
			out = append(out, cur)
			cur = []string{}
			continue
		}
		cur = append(cur, f)
	}
	return append(out, cur)
}

func floats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out[i] = v
	}
	return out, nil
}
