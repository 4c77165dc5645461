package imagemod

import (
	"sort"
	"time"
)

// sampleFrames selects an evenly-spaced subset of at most n frames, always
// including the first. Fewer than n frames are used as-is. The returned
// frames are re-indexed by their position within the sampled sequence.
func sampleFrames(frames []*Frame, n int) []*Frame {
	if n < 1 {
		n = 1
	}
	if len(frames) <= n {
		reindex(frames)
		return frames
	}

	sampled := make([]*Frame, 0, n)
	// Even spacing over [0, len); integer arithmetic keeps index 0 first.
	step := len(frames)
	for i := 0; i < n; i++ {
		sampled = append(sampled, frames[i*step/n])
	}
	reindex(sampled)
	return sampled
}

func reindex(frames []*Frame) {
	for i, f := range frames {
		f.Index = i
	}
}

// flagCategories maps score keys that act as boolean hard-flags rather than
// graded risk scores.
var flagCategories = map[string]bool{
	FlagOCRMatch:  true,
	FlagMetaMatch: true,
}

// foldResults folds per-frame engine results into one per-input Signal.
//
// Per category the aggregated score is the maximum across sampled frames: a
// single problematic frame in an otherwise benign animation must not be
// diluted. Hard-flags are unioned across frames. An engine is error for the
// input if it errored on any frame, disabled/skipped if it never ran, ok
// otherwise.
func foldResults(perEngine map[string][]EngineResult) Signal {
	sig := Signal{
		Scores:  make(map[string]float64),
		Sources: make(map[string]string),
		Engines: make(map[string]EngineResult),
	}

	// Ties on the per-category max resolve to the first engine in name
	// order, keeping reasons reproducible across runs.
	names := make([]string, 0, len(perEngine))
	for name := range perEngine {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		frameResults := perEngine[name]
		folded := EngineResult{Engine: name, Status: StatusSkipped}
		seenFlags := make(map[string]bool)
		var took time.Duration
		detailFromError := false

		for _, r := range frameResults {
			took += r.Took
			folded.Status = foldStatus(folded.Status, r.Status)
			if r.Status != StatusOK {
				// The first error detail wins: when the fold ends up as
				// error, the cited cause must be the failure, not some
				// later frame's disabled note.
				switch {
				case r.Detail == "":
				case r.Status == StatusError && !detailFromError:
					folded.Detail = r.Detail
					detailFromError = true
				case folded.Detail == "":
					folded.Detail = r.Detail
				}
				continue
			}
			for cat, score := range r.Scores {
				if flagCategories[cat] {
					if score >= 1.0 && !seenFlags[cat] {
						seenFlags[cat] = true
						sig.Flags = append(sig.Flags, Flag{Name: cat, Engine: name, Detail: r.Detail})
					}
					continue
				}
				if folded.Scores == nil {
					folded.Scores = make(map[string]float64)
				}
				if score >= folded.Scores[cat] {
					folded.Scores[cat] = score
				}
				if _, seen := sig.Sources[cat]; !seen || score > sig.Scores[cat] {
					sig.Scores[cat] = score
					sig.Sources[cat] = name
				}
			}
		}

		folded.Took = took
		sig.Engines[name] = folded
	}

	return sig
}

// foldStatus combines per-frame statuses conservatively: any error makes the
// engine error for the whole input; any ok (absent errors) makes it ok;
// disabled and skipped only survive when the engine never ran.
func foldStatus(acc, next Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusError:
			return 3
		case StatusOK:
			return 2
		case StatusDisabled:
			return 1
		default: // skipped
			return 0
		}
	}
	if rank(next) > rank(acc) {
		return next
	}
	return acc
}
