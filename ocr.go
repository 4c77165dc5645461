package imagemod

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PatternSet is a compiled text blocklist: newline-delimited patterns, blank
// lines and '#' comments ignored. Each line is compiled as a case-insensitive
// regular expression; lines that fail to compile are matched literally.
type PatternSet struct {
	patterns []*regexp.Regexp
}

// LoadPatternSet reads and compiles a pattern blocklist file. A missing file
// yields an empty set.
func LoadPatternSet(path string) (*PatternSet, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-provided list path.
	if err != nil {
		if os.IsNotExist(err) {
			return &PatternSet{}, nil
		}
		return nil, fmt.Errorf("open pattern list %s: %w", path, err)
	}
	defer f.Close()

	ps := &PatternSet{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps.Add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pattern list %s: %w", path, err)
	}
	return ps, nil
}

// NewPatternSet compiles the given patterns.
func NewPatternSet(patterns ...string) *PatternSet {
	ps := &PatternSet{}
	for _, p := range patterns {
		ps.Add(p)
	}
	return ps
}

// Add compiles one pattern into the set.
func (ps *PatternSet) Add(pattern string) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
	}
	ps.patterns = append(ps.patterns, re)
}

// Len returns the number of compiled patterns.
func (ps *PatternSet) Len() int { return len(ps.patterns) }

// Match returns the first pattern matching text, after NFC normalization.
func (ps *PatternSet) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	text = norm.NFC.String(text)
	for _, re := range ps.patterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

// minOCRTextLen filters OCR noise: shorter extractions are treated as empty.
const minOCRTextLen = 3

// OCREngine extracts text from a frame via the injected TextExtractor and
// matches it against the blocklist. A hit raises the ocr_match hard-flag with
// the matched pattern recorded.
type OCREngine struct {
	extractor TextExtractor
	patterns  *PatternSet
	policy    OCRPolicy
}

// NewOCREngine builds the OCR matcher engine.
func NewOCREngine(extractor TextExtractor, patterns *PatternSet, policy OCRPolicy) *OCREngine {
	return &OCREngine{extractor: extractor, patterns: patterns, policy: policy}
}

func (e *OCREngine) Name() string { return "ocr" }

// Available reports disabled when OCR is off, no extractor is injected, or
// the blocklist is empty. None of these are errors.
func (e *OCREngine) Available() (bool, string) {
	if !e.policy.Enabled {
		return false, "ocr disabled by policy"
	}
	if e.extractor == nil {
		return false, "no text extractor configured"
	}
	if e.patterns == nil || e.patterns.Len() == 0 {
		return false, "ocr blocklist empty"
	}
	return true, ""
}

func (e *OCREngine) Score(ctx context.Context, f *Frame) (Observation, error) {
	text, err := e.extractor.Extract(ctx, f, e.policy.Language)
	if err != nil {
		return Observation{}, fmt.Errorf("extract text: %w", err)
	}

	text = strings.TrimSpace(text)
	if len(text) < minOCRTextLen {
		return Observation{}, fmt.Errorf("no extractable text: %w", ErrUnavailable)
	}

	if pattern, ok := e.patterns.Match(text); ok {
		return Observation{
			Scores: map[string]float64{FlagOCRMatch: 1},
			Detail: "matched pattern " + pattern,
		}, nil
	}
	return Observation{Scores: map[string]float64{FlagOCRMatch: 0}}, nil
}
