package imagemod

import (
	"fmt"
	"sort"
)

// ComputeVerdict fuses an aggregated signal set and the policy into the final
// verdict. The fusion is monotonic: every trigger can only raise severity,
// so adding a signal never lowers the outcome.
//
// BLOCK iff a hard-flag is set or an aggregated category score meets or
// exceeds its BLOCK threshold; REVIEW iff not BLOCK and a category score
// meets or exceeds its REVIEW threshold or an engine failure is mapped to
// REVIEW by policy; OK otherwise. All comparisons are inclusive.
func ComputeVerdict(sig Signal, pol Policy) Verdict {
	label := LabelOK
	var reasons []string

	// Hard-flags force BLOCK regardless of numeric scores.
	for _, f := range sig.Flags {
		label = maxLabel(label, LabelBlock)
		reason := fmt.Sprintf("%s hard-flag set (engine: %s)", f.Name, f.Engine)
		if f.Detail != "" {
			reason += ": " + f.Detail
		}
		reasons = append(reasons, reason)
	}

	// Category scores against thresholds, in stable category order.
	categories := make([]string, 0, len(sig.Scores))
	for cat := range sig.Scores {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		score := sig.Scores[cat]
		t := pol.threshold(cat)
		switch {
		case score >= t.Block:
			label = maxLabel(label, LabelBlock)
			reasons = append(reasons, fmt.Sprintf("%s score %.2f >= BLOCK threshold %.2f (engine: %s)",
				cat, score, t.Block, sig.Sources[cat]))
		case score >= t.Review:
			label = maxLabel(label, LabelReview)
			reasons = append(reasons, fmt.Sprintf("%s score %.2f >= REVIEW threshold %.2f (engine: %s)",
				cat, score, t.Review, sig.Sources[cat]))
		}
	}

	// Engine failures, escalated per policy. Disabled and skipped engines
	// never influence severity.
	if pol.EngineErrorPolicy != ErrorIgnore {
		failed := make([]string, 0, len(sig.Engines))
		for name, r := range sig.Engines {
			if r.Status == StatusError {
				failed = append(failed, name)
			}
		}
		sort.Strings(failed)
		for _, name := range failed {
			forced := LabelReview
			if pol.EngineErrorPolicy == ErrorBlock {
				forced = LabelBlock
			}
			label = maxLabel(label, forced)
			reason := fmt.Sprintf("engine %s failed (error policy: %s)", name, pol.EngineErrorPolicy)
			if d := sig.Engines[name].Detail; d != "" {
				reason += ": " + d
			}
			reasons = append(reasons, reason)
		}
	}

	if label != LabelOK && len(reasons) == 0 {
		reasons = append(reasons, "borderline content detected")
	}

	return Verdict{Label: label, Reasons: reasons, Engines: sig.Engines}
}

// wrapGate converts a gate short-circuit into the final verdict directly,
// bypassing the verdict engine. The single reason records the short-circuit.
func wrapGate(d GateDecision) Verdict {
	entry := d.Entry.Hex
	if d.Entry.Label != "" {
		entry += " (" + d.Entry.Label + ")"
	}
	switch d.Outcome {
	case GateBlock:
		return Verdict{
			Label:        LabelBlock,
			Reasons:      []string{fmt.Sprintf("hash matched blocklist entry %s, distance %d", entry, d.Distance)},
			ShortCircuit: true,
		}
	default:
		return Verdict{
			Label:        LabelOK,
			Reasons:      []string{fmt.Sprintf("hash matched allowlist entry %s, distance %d", entry, d.Distance)},
			ShortCircuit: true,
		}
	}
}
