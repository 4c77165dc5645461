package imagemod

import (
	"context"
	"errors"
)

// ErrUnavailable marks a scoring failure that is really a missing capability
// discovered mid-run (e.g. no extractable text). The runner converts it to a
// disabled result instead of an error, so it never escalates severity.
var ErrUnavailable = errors.New("engine unavailable")

// Engine is an opaque scorer mapping one frame to per-category scores.
// Implementations must respect the context deadline and return promptly;
// the runner converts a missed deadline into an error result regardless.
type Engine interface {
	// Name returns the engine's unique identifier (e.g. "opennsfw2").
	Name() string

	// Available reports whether the engine can run, checked once per input
	// before any dispatch. An unavailable engine (missing dependency or
	// credentials) yields a disabled result, never an error.
	Available() (bool, string)

	// Score evaluates a single frame. Scores must be in [0,1]; a score of
	// 1.0 on a flag category (ocr_match, meta_match) raises a hard-flag.
	Score(ctx context.Context, f *Frame) (Observation, error)
}

// EngineFunc adapts a plain scoring function (e.g. a locally hosted model
// wrapped by the caller) into an Engine that is always available.
type EngineFunc struct {
	ID string
	Fn func(ctx context.Context, f *Frame) (Observation, error)
}

func (e EngineFunc) Name() string { return e.ID }

func (e EngineFunc) Available() (bool, string) { return true, "" }

func (e EngineFunc) Score(ctx context.Context, f *Frame) (Observation, error) {
	return e.Fn(ctx, f)
}

// Registry holds the configured engines in invocation order. The order is
// config-driven and deterministic; results are keyed by engine name, so the
// mapping itself is order-independent.
type Registry struct {
	order   []string
	engines map[string]Engine
}

// NewRegistry builds a registry from engines in the given order.
// A duplicate name replaces the earlier registration in place.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an engine.
func (r *Registry) Register(e Engine) {
	if _, ok := r.engines[e.Name()]; !ok {
		r.order = append(r.order, e.Name())
	}
	r.engines[e.Name()] = e
}

// Engines returns the registered engines in registration order.
func (r *Registry) Engines() []Engine {
	out := make([]Engine, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.engines[name])
	}
	return out
}
