package imagemod

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bep/imagemeta"
)

// metaTextTags maps (source, tag-name) -> true for every text-bearing
// metadata field worth matching against the blocklist. Offensive text is
// sometimes smuggled in fields that never render on screen.
var metaTextTags = map[imagemeta.Source]map[string]bool{
	imagemeta.IPTC: {
		"Caption-Abstract": true,
		"Headline":         true,
		"Keywords":         true,
		"ObjectName":       true,
		"Byline":           true,
	},
	imagemeta.EXIF: {
		"ImageDescription": true,
		"UserComment":      true,
		"XPComment":        true,
		"XPTitle":          true,
		"Artist":           true,
	},
	imagemeta.XMP: {
		"Description": true,
		"Title":       true,
		"Subject":     true,
		"Rights":      true,
	},
}

// MetaTextEngine matches embedded image metadata text (EXIF/IPTC/XMP) against
// the same blocklist the OCR matcher uses. A hit raises the meta_match
// hard-flag with the field and pattern recorded.
type MetaTextEngine struct {
	patterns *PatternSet
}

// NewMetaTextEngine builds the metadata text engine.
func NewMetaTextEngine(patterns *PatternSet) *MetaTextEngine {
	return &MetaTextEngine{patterns: patterns}
}

func (e *MetaTextEngine) Name() string { return "metatext" }

func (e *MetaTextEngine) Available() (bool, string) {
	if e.patterns == nil || e.patterns.Len() == 0 {
		return false, "text blocklist empty"
	}
	return true, ""
}

func (e *MetaTextEngine) Score(_ context.Context, f *Frame) (Observation, error) {
	if len(f.Source) == 0 {
		return Observation{}, fmt.Errorf("no source bytes on frame: %w", ErrUnavailable)
	}

	fields := extractMetaText(f.Source)
	if len(fields) == 0 {
		return Observation{Scores: map[string]float64{FlagMetaMatch: 0}}, nil
	}

	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	for _, field := range names {
		if pattern, ok := e.patterns.Match(fields[field]); ok {
			return Observation{
				Scores: map[string]float64{FlagMetaMatch: 1},
				Detail: fmt.Sprintf("field %s matched pattern %s", field, pattern),
			}, nil
		}
	}
	return Observation{Scores: map[string]float64{FlagMetaMatch: 0}}, nil
}

// extractMetaText parses EXIF/IPTC/XMP metadata from raw image bytes and
// returns the text-bearing fields, keyed "source/tag". Graceful degradation:
// unparseable metadata yields an empty map, never an error.
func extractMetaText(data []byte) map[string]string {
	fields := make(map[string]string)

	err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := metaTextTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if s := metaTagString(ti.Value); s != "" {
				fields[sourceName(ti.Source)+"/"+ti.Tag] = s
			}
			return nil
		},
	})
	if err != nil {
		return nil
	}
	return fields
}

func sourceName(s imagemeta.Source) string {
	switch s {
	case imagemeta.EXIF:
		return "exif"
	case imagemeta.IPTC:
		return "iptc"
	case imagemeta.XMP:
		return "xmp"
	default:
		return "meta"
	}
}

// metaTagString extracts a string from a tag value. XMP values may be string
// or []string (from altList/seqList).
func metaTagString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		return strings.TrimSpace(strings.Join(val, " "))
	default:
		return ""
	}
}
