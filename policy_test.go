package imagemod

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPolicyValid(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("DefaultPolicy().Validate() = %v", err)
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Setenv("IMAGEMOD_TEST_LANG", "deu")

	content := `
sample_frames: 6
max_hash_distance: 4
engine_error_policy: block
ocr:
  enabled: true
  language: $IMAGEMOD_TEST_LANG
engines:
  sightengine: false
thresholds:
  nudity:
    review: 0.5
    block: 0.85
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pol, err := LoadPolicy(path)
	if err != nil {
		t.Fatal(err)
	}
	if pol.SampleFrames != 6 {
		t.Errorf("SampleFrames = %d, want 6", pol.SampleFrames)
	}
	if pol.MaxHashDistance != 4 {
		t.Errorf("MaxHashDistance = %d, want 4", pol.MaxHashDistance)
	}
	if pol.EngineErrorPolicy != ErrorBlock {
		t.Errorf("EngineErrorPolicy = %s, want block", pol.EngineErrorPolicy)
	}
	if pol.OCR.Language != "deu" {
		t.Errorf("OCR.Language = %q, want env-expanded deu", pol.OCR.Language)
	}
	if pol.engineEnabled("sightengine") {
		t.Error("sightengine should be disabled")
	}
	if !pol.engineEnabled("ocr") {
		t.Error("unlisted engines default to enabled")
	}
	if got := pol.threshold(CategoryNudity); got != (Threshold{Review: 0.5, Block: 0.85}) {
		t.Errorf("threshold(nudity) = %+v", got)
	}
	if got := pol.threshold(CategoryViolence); got != defaultThreshold {
		t.Errorf("threshold(violence) = %+v, want default", got)
	}
	// Unset fields keep their defaults.
	if pol.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want default 4", pol.Concurrency)
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing policy file must be an error, not a silent default")
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr string
	}{
		{
			name:    "zero sample frames",
			mutate:  func(p *Policy) { p.SampleFrames = 0 },
			wantErr: "sample_frames",
		},
		{
			name:    "negative hash distance",
			mutate:  func(p *Policy) { p.MaxHashDistance = -1 },
			wantErr: "max_hash_distance",
		},
		{
			name:    "unknown error policy",
			mutate:  func(p *Policy) { p.EngineErrorPolicy = "explode" },
			wantErr: "engine_error_policy",
		},
		{
			name:    "zero concurrency",
			mutate:  func(p *Policy) { p.Concurrency = 0 },
			wantErr: "concurrency",
		},
		{
			name:    "zero timeout",
			mutate:  func(p *Policy) { p.TimeoutSeconds = 0 },
			wantErr: "engine_timeout_seconds",
		},
		{
			name: "threshold out of range",
			mutate: func(p *Policy) {
				p.Thresholds = map[string]Threshold{CategoryNudity: {Review: 0.4, Block: 1.2}}
			},
			wantErr: "thresholds.nudity",
		},
		{
			name: "review above block",
			mutate: func(p *Policy) {
				p.Thresholds = map[string]Threshold{CategoryNudity: {Review: 0.9, Block: 0.5}}
			},
			wantErr: "must not exceed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pol := DefaultPolicy()
			tc.mutate(&pol)
			err := pol.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %q, want mention of %q", err, tc.wantErr)
			}
		})
	}
}
