// Package imagemod decides whether an image or animated image is acceptable
// (OK), needs human judgement (REVIEW), or must be rejected (BLOCK).
//
// The pipeline is: perceptual-hash gate (early exit for previously seen
// content) -> per-frame fan-out over a set of opaque scoring engines with
// per-engine failure isolation -> max-aggregation of per-frame signals ->
// verdict fusion against policy thresholds -> optional auto-learn of the
// input's hash into the allow/block stores.
package imagemod

import (
	"context"
	"net/http"
)

// TextExtractor is the external OCR collaborator: it pulls text out of a
// frame. Absence of extractable text is not an error; return an empty string.
type TextExtractor interface {
	Extract(ctx context.Context, f *Frame, language string) (string, error)
}

// Config holds the policy snapshot and all injected collaborators.
type Config struct {
	Policy Policy

	// Allowlist and Blocklist are the perceptual-hash stores. Nil disables
	// the corresponding half of the gate.
	Allowlist *HashStore
	Blocklist *HashStore

	// Registry supplies the scoring engines in invocation order.
	Registry *Registry

	// Patterns is the text blocklist shared by the OCR and metadata engines.
	Patterns *PatternSet

	// Extractor is the OCR collaborator. Nil = OCR engine reports disabled.
	Extractor TextExtractor

	// Skip marks engines excluded by the caller for this run (name ->
	// reason), e.g. API engines under --no-apis. Distinct from disabled.
	Skip map[string]string

	// HTTPClient is used for input downloads and API engines.
	// Nil = http.DefaultClient.
	HTTPClient *http.Client
}

// defaults fills zero-value fields with sensible defaults, so a zero-value
// Config is usable. A Policy not built via DefaultPolicy/LoadPolicy gets the
// default for every unset field; Concurrency in particular must never reach
// the runner as 0, which would stall the fan-out.
func (cfg *Config) defaults() {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	def := DefaultPolicy()
	if cfg.Policy.Concurrency < 1 {
		cfg.Policy.Concurrency = def.Concurrency
	}
	if cfg.Policy.TimeoutSeconds < 1 {
		cfg.Policy.TimeoutSeconds = def.TimeoutSeconds
	}
	if cfg.Policy.SampleFrames < 1 {
		cfg.Policy.SampleFrames = def.SampleFrames
	}
	if cfg.Policy.EngineErrorPolicy == "" {
		cfg.Policy.EngineErrorPolicy = def.EngineErrorPolicy
	}
}
