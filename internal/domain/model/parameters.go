package model

import (
	"sort"
	"strings"
)

// Parameter defaults applied when a request leaves them blank.
const (
	DefaultAnalysisKind = "comprehensive"
	DefaultPeriod       = "current"
)

// Narrative field names, shared by overrides and the prompt default table.
const (
	FieldPerformanceNarrative   = "performanceNarrative"
	FieldFeedbackNarrative      = "feedbackNarrative"
	FieldContributionNarrative  = "contributionNarrative"
	FieldCollaborationNarrative = "collaborationNarrative"
)

// Parameters are the request-scoped knobs of one analysis.
type Parameters struct {
	AnalysisKind string            `json:"analysisKind,omitempty"`
	Period       string            `json:"period,omitempty"`
	Overrides    map[string]string `json:"overrides,omitempty"`
	FocusAreas   []string          `json:"focusAreas,omitempty"`
}

// Normalized fills defaults and trims whitespace. Blank overrides are dropped
// and focus areas are de-duplicated in sorted order so equal requests compile
// to equal prompts.
func (p Parameters) Normalized() Parameters {
	out := Parameters{
		AnalysisKind: strings.TrimSpace(p.AnalysisKind),
		Period:       strings.TrimSpace(p.Period),
	}
	if out.AnalysisKind == "" {
		out.AnalysisKind = DefaultAnalysisKind
	}
	if out.Period == "" {
		out.Period = DefaultPeriod
	}
	for k, v := range p.Overrides {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if out.Overrides == nil {
			out.Overrides = make(map[string]string, len(p.Overrides))
		}
		out.Overrides[strings.TrimSpace(k)] = v
	}
	seen := make(map[string]struct{}, len(p.FocusAreas))
	for _, f := range p.FocusAreas {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out.FocusAreas = append(out.FocusAreas, f)
	}
	sort.Strings(out.FocusAreas)
	return out
}

// ApplyOverrides returns a copy of s with narrative overrides merged on top of
// the subject's own narratives. Unknown override keys are ignored.
func ApplyOverrides(s Subject, overrides map[string]string) Subject {
	out := s.Clone()
	if len(overrides) == 0 {
		return out
	}
	switch {
	case out.Employee != nil:
		e := out.Employee
		setIf(&e.PerformanceNarrative, overrides[FieldPerformanceNarrative])
		setIf(&e.FeedbackNarrative, overrides[FieldFeedbackNarrative])
		setIf(&e.ContributionNarrative, overrides[FieldContributionNarrative])
	case out.Team != nil:
		t := out.Team
		setIf(&t.PerformanceNarrative, overrides[FieldPerformanceNarrative])
		setIf(&t.CollaborationNarrative, overrides[FieldCollaborationNarrative])
	}
	return out
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
