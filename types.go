package imagemod

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// Status describes how an engine invocation ended.
type Status string

const (
	// StatusOK means the engine ran and produced scores.
	StatusOK Status = "ok"
	// StatusSkipped means the caller excluded the engine (e.g. --no-apis).
	StatusSkipped Status = "skipped"
	// StatusDisabled means the engine declared itself unavailable before
	// being invoked (missing credentials, disabled by policy).
	StatusDisabled Status = "disabled"
	// StatusError means the engine failed while scoring (error, panic or
	// timeout). Severity impact is governed by Policy.EngineErrorPolicy.
	StatusError Status = "error"
)

// Score categories shared by engines. Engines may emit additional categories;
// unknown categories fall back to the default thresholds.
const (
	CategoryNudity   = "nudity"
	CategoryViolence = "violence"
	CategoryWeapon   = "weapon"
	CategoryHateText = "hate_text"
)

// Flag categories. A score >= 1.0 on one of these becomes a hard-flag during
// aggregation: a deterministic BLOCK signal independent of thresholds.
const (
	FlagOCRMatch  = "ocr_match"
	FlagMetaMatch = "meta_match"
)

// Frame is one decoded image within a sampled sequence. Index is the frame's
// position within the sampled sequence (0 = first frame of the input).
// Frames are owned transiently by a single pipeline call and never persisted.
type Frame struct {
	Index int
	Image image.Image

	// Source holds the raw input bytes, set by the loader on the first
	// frame only. Used by engines that need the undecoded file (metadata).
	Source []byte

	// API engines need JPEG bytes. Computed once, on demand.
	jpegOnce sync.Once
	jpeg     []byte
	jpegErr  error
}

// NewFrame wraps a decoded image as a pipeline frame.
func NewFrame(index int, img image.Image) *Frame {
	return &Frame{Index: index, Image: img}
}

// JPEGBytes returns the frame encoded as JPEG, computed once per frame.
func (f *Frame) JPEGBytes() ([]byte, error) {
	f.jpegOnce.Do(func() {
		var buf bytes.Buffer
		f.jpegErr = jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: 90})
		f.jpeg = buf.Bytes()
	})
	return f.jpeg, f.jpegErr
}

// Observation is what an engine reports for a single frame: per-category
// scores in [0,1] plus an optional diagnostic (e.g. the matched OCR pattern).
type Observation struct {
	Scores map[string]float64
	Detail string
}

// EngineResult records one engine's outcome. Produced once per (engine,
// frame) pair by the runner, then folded into one result per engine for the
// whole input. Scores is empty unless Status is ok.
type EngineResult struct {
	Engine string             `json:"engine"`
	Status Status             `json:"status"`
	Scores map[string]float64 `json:"scores,omitempty"`
	Detail string             `json:"detail,omitempty"`
	Took   time.Duration      `json:"took_ms"`
}

// Flag is a boolean hard signal raised by an engine (OCR blocklist hit,
// metadata blocklist hit). Any flag forces a BLOCK verdict.
type Flag struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
	Detail string `json:"detail,omitempty"`
}

// Signal is the per-input aggregation of every sampled frame's engine
// results: per-category max score, unioned hard-flags, and the folded
// per-engine breakdown for audit.
type Signal struct {
	Scores  map[string]float64
	Sources map[string]string // category -> engine that produced the max
	Flags   []Flag
	Engines map[string]EngineResult
}

// Label is the final categorical decision.
type Label string

const (
	LabelOK     Label = "OK"
	LabelReview Label = "REVIEW"
	LabelBlock  Label = "BLOCK"
)

// severity orders labels: BLOCK > REVIEW > OK.
func (l Label) severity() int {
	switch l {
	case LabelBlock:
		return 2
	case LabelReview:
		return 1
	default:
		return 0
	}
}

// maxLabel returns the more severe of two labels.
func maxLabel(a, b Label) Label {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Verdict is the final decision for one input, immutable once produced.
// Reasons are ordered and name the triggering category/engine/threshold.
type Verdict struct {
	Label        Label                   `json:"label"`
	Reasons      []string                `json:"reasons"`
	Engines      map[string]EngineResult `json:"engines,omitempty"`
	ShortCircuit bool                    `json:"short_circuit"`
}
