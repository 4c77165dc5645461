package imagemod

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrorPolicy controls how an engine failure affects the final verdict.
type ErrorPolicy string

const (
	// ErrorIgnore drops the failed engine's contribution entirely.
	ErrorIgnore ErrorPolicy = "ignore"
	// ErrorReview forces at least REVIEW severity on any engine failure.
	ErrorReview ErrorPolicy = "review"
	// ErrorBlock forces BLOCK severity on any engine failure.
	ErrorBlock ErrorPolicy = "block"
)

// Threshold holds the REVIEW and BLOCK cutoffs for one category.
// Comparisons are inclusive: score >= cutoff triggers.
type Threshold struct {
	Review float64 `yaml:"review"`
	Block  float64 `yaml:"block"`
}

// defaultThreshold applies to categories without an explicit entry.
var defaultThreshold = Threshold{Review: 0.40, Block: 0.85}

// ShortCircuitPolicy enables/disables the hash gate per list.
type ShortCircuitPolicy struct {
	Allow bool `yaml:"allow"`
	Block bool `yaml:"block"`
}

// OCRPolicy configures the OCR text matcher.
type OCRPolicy struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// AutoLearnPolicy configures the feedback loop that records conclusively
// judged hashes into the allow/block stores.
type AutoLearnPolicy struct {
	Enabled bool `yaml:"enabled"`
	Allow   bool `yaml:"allow"`
	Block   bool `yaml:"block"`
}

// Policy is the immutable configuration snapshot for one run. It is
// constructed once at startup and passed down; no component reads ambient
// process state.
type Policy struct {
	SampleFrames      int                  `yaml:"sample_frames"`
	ShortCircuit      ShortCircuitPolicy   `yaml:"short_circuit"`
	MaxHashDistance   int                  `yaml:"max_hash_distance"`
	EngineErrorPolicy ErrorPolicy          `yaml:"engine_error_policy"`
	OCR               OCRPolicy            `yaml:"ocr"`
	AutoLearn         AutoLearnPolicy      `yaml:"auto_learn"`
	VerboseScores     bool                 `yaml:"verbose_scores"`
	Engines           map[string]bool      `yaml:"engines"`
	Thresholds        map[string]Threshold `yaml:"thresholds"`
	Concurrency       int                  `yaml:"concurrency"`
	TimeoutSeconds    int                  `yaml:"engine_timeout_seconds"`
}

// DefaultPolicy returns the policy used when no config file is supplied.
func DefaultPolicy() Policy {
	return Policy{
		SampleFrames:      12,
		ShortCircuit:      ShortCircuitPolicy{Allow: true, Block: true},
		MaxHashDistance:   0,
		EngineErrorPolicy: ErrorReview,
		OCR:               OCRPolicy{Enabled: true, Language: "eng"},
		AutoLearn:         AutoLearnPolicy{Enabled: false, Allow: true, Block: true},
		Concurrency:       4,
		TimeoutSeconds:    30,
	}
}

// LoadPolicy reads a YAML policy file. Environment references ($VAR) in the
// file are expanded before parsing. The returned policy is validated;
// an invalid policy is fatal before any input is processed.
func LoadPolicy(path string) (Policy, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	pol := DefaultPolicy()
	if err := yaml.Unmarshal([]byte(expanded), &pol); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return pol, pol.Validate()
}

// Validate reports the first invalid policy value, if any.
func (p Policy) Validate() error {
	if p.SampleFrames < 1 {
		return fmt.Errorf("sample_frames must be >= 1, got %d", p.SampleFrames)
	}
	if p.MaxHashDistance < 0 {
		return fmt.Errorf("max_hash_distance must be >= 0, got %d", p.MaxHashDistance)
	}
	switch p.EngineErrorPolicy {
	case ErrorIgnore, ErrorReview, ErrorBlock:
	default:
		return fmt.Errorf("engine_error_policy must be one of ignore|review|block, got %q", p.EngineErrorPolicy)
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", p.Concurrency)
	}
	if p.TimeoutSeconds < 1 {
		return fmt.Errorf("engine_timeout_seconds must be >= 1, got %d", p.TimeoutSeconds)
	}
	for cat, t := range p.Thresholds {
		if t.Review < 0 || t.Review > 1 || t.Block < 0 || t.Block > 1 {
			return fmt.Errorf("thresholds.%s: values must be within [0,1]", cat)
		}
		if t.Review > t.Block {
			return fmt.Errorf("thresholds.%s: review (%.2f) must not exceed block (%.2f)", cat, t.Review, t.Block)
		}
	}
	return nil
}

// threshold returns the effective threshold for a category.
func (p Policy) threshold(category string) Threshold {
	if t, ok := p.Thresholds[category]; ok {
		return t
	}
	return defaultThreshold
}

// engineEnabled reports whether an engine is enabled. Engines are enabled
// unless explicitly disabled in the policy.
func (p Policy) engineEnabled(name string) bool {
	if enabled, ok := p.Engines[name]; ok {
		return enabled
	}
	return true
}

// engineTimeout returns the per-invocation timeout.
func (p Policy) engineTimeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}
