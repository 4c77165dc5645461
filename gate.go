package imagemod

import (
	"log/slog"

	"github.com/corona10/goimagehash"
)

// GateOutcome is the hash gate's decision for an input.
type GateOutcome int

const (
	// GateNone means neither list matched; full engine evaluation follows.
	GateNone GateOutcome = iota
	// GateAllow short-circuits to OK (allowlist match).
	GateAllow
	// GateBlock short-circuits to BLOCK (blocklist match).
	GateBlock
)

// GateDecision carries the gate outcome plus the matched entry for reasons.
type GateDecision struct {
	Outcome  GateOutcome
	Entry    PHashEntry
	Distance int
}

// checkGate matches an input's perceptual hash against the allow/block
// stores. Read-only; runs before any engine is dispatched so short-circuited
// inputs never pay inference cost. The blocklist takes precedence over the
// allowlist: the lists are meant to be disjoint, so a double match is an
// integrity fault, logged but not fatal.
func (cfg *Config) checkGate(hash *goimagehash.ImageHash) GateDecision {
	pol := cfg.Policy

	var block, allow *GateDecision
	if pol.ShortCircuit.Block && cfg.Blocklist != nil {
		if e, d, ok := cfg.Blocklist.Match(hash, pol.MaxHashDistance); ok {
			block = &GateDecision{Outcome: GateBlock, Entry: e, Distance: d}
		}
	}
	if pol.ShortCircuit.Allow && cfg.Allowlist != nil {
		if e, d, ok := cfg.Allowlist.Match(hash, pol.MaxHashDistance); ok {
			allow = &GateDecision{Outcome: GateAllow, Entry: e, Distance: d}
		}
	}

	if block != nil && allow != nil {
		slog.Warn("imagemod: hash present in both allow and block lists, blocklist wins",
			"hash", HashHex(hash), "allow_label", allow.Entry.Label, "block_label", block.Entry.Label)
	}
	if block != nil {
		return *block
	}
	if allow != nil {
		return *allow
	}
	return GateDecision{Outcome: GateNone}
}
