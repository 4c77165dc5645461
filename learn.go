package imagemod

import (
	"log/slog"

	"github.com/corona10/goimagehash"
)

// nearMissMargin is how close to a REVIEW threshold a score may get before an
// OK verdict stops being conclusive enough to auto-learn.
const nearMissMargin = 0.05

// autoLearn appends the input's hash to the matching store when the verdict
// is conclusive. Never learns from REVIEW: ambiguous outcomes must not
// poison the lists. Append failures are logged and reported but never alter
// the already-computed verdict. Returns a human-readable note, or "" when
// nothing was learned.
func (cfg *Config) autoLearn(hash *goimagehash.ImageHash, v Verdict, sig Signal) string {
	pol := cfg.Policy.AutoLearn
	if !pol.Enabled || hash == nil {
		return ""
	}

	switch v.Label {
	case LabelOK:
		if !pol.Allow || cfg.Allowlist == nil || !conclusiveOK(v, sig, cfg.Policy) {
			return ""
		}
		return appendLearned(cfg.Allowlist, hash, "allowlist")
	case LabelBlock:
		if !pol.Block || cfg.Blocklist == nil || !conclusiveBlock(v, sig, cfg.Policy) {
			return ""
		}
		return appendLearned(cfg.Blocklist, hash, "blocklist")
	default:
		return ""
	}
}

// conclusiveOK reports whether an OK verdict is safe to learn from: either a
// gate short-circuit, or a full evaluation where at least one engine scored,
// none errored, and no category came within nearMissMargin of its REVIEW
// threshold.
func conclusiveOK(v Verdict, sig Signal, pol Policy) bool {
	if v.ShortCircuit {
		return true
	}
	ranAny := false
	for _, r := range sig.Engines {
		switch r.Status {
		case StatusError:
			return false
		case StatusOK:
			ranAny = true
		}
	}
	if !ranAny {
		return false
	}
	for cat, score := range sig.Scores {
		if score >= pol.threshold(cat).Review-nearMissMargin {
			return false
		}
	}
	return true
}

// conclusiveBlock reports whether a BLOCK verdict is backed by a hard-flag or
// a high-confidence score, rather than forced by the engine error policy.
func conclusiveBlock(v Verdict, sig Signal, pol Policy) bool {
	if v.ShortCircuit {
		return true
	}
	if len(sig.Flags) > 0 {
		return true
	}
	for cat, score := range sig.Scores {
		if score >= pol.threshold(cat).Block {
			return true
		}
	}
	return false
}

func appendLearned(store *HashStore, hash *goimagehash.ImageHash, listName string) string {
	added, err := store.Append(hash, LabelAutoLearned)
	if err != nil {
		slog.Warn("imagemod: auto-learn append failed", "list", listName, "error", err.Error())
		return "auto-learn failed for " + listName + ": " + err.Error()
	}
	if !added {
		return ""
	}
	return "auto-learned hash " + HashHex(hash) + " into " + listName
}
