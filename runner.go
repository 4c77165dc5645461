package imagemod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// runEngines invokes every registered engine against every sampled frame and
// returns per-frame results keyed by engine name. One engine's failure never
// prevents another from running: failures surface as error-status results.
//
// Availability and policy checks happen once per engine before any dispatch;
// skipped and disabled engines get a single result and no frame ever runs.
// Frame x engine tasks run concurrently, bounded by Policy.Concurrency.
func (cfg *Config) runEngines(ctx context.Context, frames []*Frame) map[string][]EngineResult {
	cfg.defaults()

	results := make(map[string][]EngineResult)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Policy.Concurrency)

	for _, eng := range cfg.Registry.Engines() {
		name := eng.Name()

		if reason, ok := cfg.Skip[name]; ok {
			results[name] = []EngineResult{{Engine: name, Status: StatusSkipped, Detail: reason}}
			continue
		}
		if !cfg.Policy.engineEnabled(name) {
			results[name] = []EngineResult{{Engine: name, Status: StatusDisabled, Detail: "disabled by policy"}}
			continue
		}
		if ok, reason := eng.Available(); !ok {
			results[name] = []EngineResult{{Engine: name, Status: StatusDisabled, Detail: reason}}
			continue
		}

		perFrame := make([]EngineResult, len(frames))
		results[name] = perFrame
		for i, f := range frames {
			i, eng, f := i, eng, f
			g.Go(func() error {
				perFrame[i] = scoreFrame(ctx, eng, f, cfg.Policy.engineTimeout())
				return nil
			})
		}
	}

	// Join barrier: aggregation needs the complete result set.
	_ = g.Wait()
	return results
}

// scoreFrame runs one engine against one frame, converting panics and missed
// deadlines into error-status results so nothing is ever left pending.
func scoreFrame(ctx context.Context, eng Engine, f *Frame, timeout time.Duration) EngineResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		obs Observation
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		obs, err := eng.Score(ctx, f)
		ch <- outcome{obs: obs, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			status := StatusError
			if errors.Is(o.err, ErrUnavailable) {
				status = StatusDisabled
			}
			slog.Debug("imagemod: engine failed", "engine", eng.Name(), "frame", f.Index, "error", o.err.Error())
			return EngineResult{
				Engine: eng.Name(),
				Status: status,
				Detail: o.err.Error(),
				Took:   time.Since(start),
			}
		}
		return EngineResult{
			Engine: eng.Name(),
			Status: StatusOK,
			Scores: clampScores(o.obs.Scores),
			Detail: o.obs.Detail,
			Took:   time.Since(start),
		}
	case <-ctx.Done():
		return EngineResult{
			Engine: eng.Name(),
			Status: StatusError,
			Detail: "timeout: " + ctx.Err().Error(),
			Took:   time.Since(start),
		}
	}
}

// clampScores forces every score into [0,1]; NaN and infinities become 0.
func clampScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			out[k] = 0
		case v < 0:
			out[k] = 0
		case v > 1:
			out[k] = 1
		default:
			out[k] = v
		}
	}
	return out
}
