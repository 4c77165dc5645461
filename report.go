package imagemod

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Report is the structured per-input result: the verdict with ordered
// reasons, the per-engine breakdown for audit, whether a short-circuit
// occurred, and what (if anything) was auto-learned.
type Report struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Verdict   Verdict       `json:"verdict"`
	AutoLearn string        `json:"auto_learn,omitempty"`
	Took      time.Duration `json:"took_ms"`
}

func newReport(name string) Report {
	return Report{ID: uuid.NewString(), Name: name}
}

// MarshalJSON emits Took as integer milliseconds to match the took_ms key.
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		alias
		Took int64 `json:"took_ms"`
	}{alias(r), r.Took.Milliseconds()})
}

// MarshalJSON emits Took as integer milliseconds to match the took_ms key.
func (r EngineResult) MarshalJSON() ([]byte, error) {
	type alias EngineResult
	return json.Marshal(struct {
		alias
		Took int64 `json:"took_ms"`
	}{alias(r), r.Took.Milliseconds()})
}

// MarshalReports serializes reports to indented JSON. Raw per-engine scores
// are included only when the policy asks for verbose output.
func MarshalReports(reports []Report, verbose bool) ([]byte, error) {
	if !verbose {
		reports = stripScores(reports)
	}
	if len(reports) == 1 {
		return json.MarshalIndent(reports[0], "", "  ")
	}
	return json.MarshalIndent(reports, "", "  ")
}

// stripScores drops raw per-engine scores from a copy of the reports,
// leaving statuses and details intact.
func stripScores(reports []Report) []Report {
	out := make([]Report, len(reports))
	for i, r := range reports {
		stripped := r
		if len(r.Verdict.Engines) > 0 {
			engines := make(map[string]EngineResult, len(r.Verdict.Engines))
			for name, er := range r.Verdict.Engines {
				er.Scores = nil
				engines[name] = er
			}
			stripped.Verdict.Engines = engines
		}
		out[i] = stripped
	}
	return out
}
