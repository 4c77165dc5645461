package imagemod

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scan runs the full decision pipeline over one input's decoded frames.
//
// The hash gate runs first and is a true admission-control gate: when it
// short-circuits, no engine invocation is ever scheduled. Otherwise the
// sampled frames fan out over the engine registry, the per-frame results
// fold into one signal set, and the verdict engine fuses them.
func (cfg *Config) Scan(ctx context.Context, name string, frames []*Frame) Report {
	cfg.defaults()
	start := time.Now()
	rep := newReport(name)

	if len(frames) == 0 {
		rep.Verdict = Verdict{
			Label:   LabelReview,
			Reasons: []string{"input produced no frames"},
		}
		rep.Took = time.Since(start)
		return rep
	}

	hash, err := ComputePHash(frames[0])
	if err != nil {
		// Graceful degradation: an unhashable input skips the gate and
		// auto-learn, full engine evaluation still runs.
		slog.Warn("imagemod: perceptual hash failed", "input", name, "error", err.Error())
		hash = nil
	}

	if hash != nil {
		if d := cfg.checkGate(hash); d.Outcome != GateNone {
			rep.Verdict = wrapGate(d)
			rep.AutoLearn = cfg.autoLearn(hash, rep.Verdict, Signal{})
			rep.Took = time.Since(start)
			return rep
		}
	}

	sampled := sampleFrames(frames, cfg.Policy.SampleFrames)
	sig := foldResults(cfg.runEngines(ctx, sampled))
	rep.Verdict = ComputeVerdict(sig, cfg.Policy)
	if hash != nil {
		rep.AutoLearn = cfg.autoLearn(hash, rep.Verdict, sig)
	}
	rep.Took = time.Since(start)
	return rep
}

// ScanInput loads an input (file path or http(s) URL) and scans it. A decode
// failure never aborts a batch: the input gets a REVIEW verdict with the
// loader failure recorded.
func (cfg *Config) ScanInput(ctx context.Context, input string) Report {
	cfg.defaults()

	var frames []*Frame
	var err error
	if isURL(input) {
		frames, err = cfg.fetchFrames(ctx, input)
	} else {
		frames, err = LoadFrames(input, cfg.Policy.SampleFrames)
	}
	if err != nil {
		rep := newReport(input)
		rep.Verdict = Verdict{
			Label:   LabelReview,
			Reasons: []string{"input decode failed: " + err.Error()},
			Engines: map[string]EngineResult{
				"loader": {Engine: "loader", Status: StatusError, Detail: err.Error()},
			},
		}
		return rep
	}

	return cfg.Scan(ctx, input, frames)
}

// ScanBatch processes inputs with bounded parallelism. Inputs are
// independent and side-effect-isolated except for the shared hash stores,
// whose appends are serialized by the stores themselves. Reports come back
// in input order.
func (cfg *Config) ScanBatch(ctx context.Context, inputs []string) []Report {
	cfg.defaults()

	reports := make([]Report, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Policy.Concurrency)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			reports[i] = cfg.ScanInput(ctx, input)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// AllOK reports whether every input's verdict is OK.
func AllOK(reports []Report) bool {
	for _, r := range reports {
		if r.Verdict.Label != LabelOK {
			return false
		}
	}
	return true
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
