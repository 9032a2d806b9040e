package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Source marks how a payload was produced.
type Source string

// Provenance values. The set is closed.
const (
	SourceLiveModel      Source = "live-model"
	SourceParsedFallback Source = "parsed-fallback"
	SourceMock           Source = "mock"
	SourceErrorFallback  Source = "error-fallback"
)

// Sources lists every provenance value in a stable order.
var Sources = []Source{SourceLiveModel, SourceParsedFallback, SourceMock, SourceErrorFallback}

// Valid reports whether s is one of the known provenance values.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Score bounds shared by the interpreter and the mock generator.
const (
	MinScore     = 1.0
	MaxScore     = 10.0
	NeutralScore = 7.5
)

// FieldOverallScore is present in every schema.
const FieldOverallScore = "overallScore"

// ClampScore pins v into [MinScore, MaxScore]. Infinities clamp to the
// nearest bound; NaN becomes NeutralScore.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return NeutralScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// Schema describes the kind-specific shape of a payload.
type Schema struct {
	Kind             Kind
	SecondaryScores  []string
	StrengthsField   string
	ConcernsField    string
	NarrativeField   string
	StrengthsDefault string
	ConcernsDefault  string
	NarrativeDefault string
}

var schemas = map[Kind]Schema{
	KindEmployee: {
		Kind:             KindEmployee,
		SecondaryScores:  []string{"performanceScore", "potentialScore", "collaborationScore"},
		StrengthsField:   "strengths",
		ConcernsField:    "improvements",
		NarrativeField:   "developmentPlan",
		StrengthsDefault: "No specific strengths were identified in this analysis.",
		ConcernsDefault:  "No specific improvement areas were identified in this analysis.",
		NarrativeDefault: "Continue the current development path and revisit goals at the next review.",
	},
	KindTeam: {
		Kind:             KindTeam,
		SecondaryScores:  []string{"collaborationScore", "productivityScore", "cohesionScore", "innovationScore"},
		StrengthsField:   "strengths",
		ConcernsField:    "risks",
		NarrativeField:   "actionPlan",
		StrengthsDefault: "No specific team strengths were identified in this analysis.",
		ConcernsDefault:  "No specific team risks were identified in this analysis.",
		NarrativeDefault: "Maintain current team practices and revisit priorities at the next planning cycle.",
	},
}

// SchemaFor returns the payload schema of kind. Unknown kinds get the employee schema.
func SchemaFor(kind Kind) Schema {
	if s, ok := schemas[kind]; ok {
		return s
	}
	return schemas[KindEmployee]
}

// Payload is the validated outcome of one analysis attempt.
// Secondary scores are keyed by their schema field name.
type Payload struct {
	Kind         Kind
	OverallScore float64
	Scores       map[string]float64
	Strengths    []string
	Concerns     []string
	Narrative    string
	Source       Source
}

// Normalize enforces payload invariants: every schema score present and
// clamped, list fields non-empty, narrative non-blank.
func (p Payload) Normalize() Payload {
	schema := SchemaFor(p.Kind)
	out := Payload{
		Kind:         schema.Kind,
		OverallScore: ClampScore(p.OverallScore),
		Scores:       make(map[string]float64, len(schema.SecondaryScores)),
		Strengths:    nonEmpty(p.Strengths, schema.StrengthsDefault),
		Concerns:     nonEmpty(p.Concerns, schema.ConcernsDefault),
		Narrative:    strings.TrimSpace(p.Narrative),
		Source:       p.Source,
	}
	for _, f := range schema.SecondaryScores {
		v, ok := p.Scores[f]
		if !ok {
			v = NeutralScore
		}
		out.Scores[f] = ClampScore(v)
	}
	if out.Narrative == "" {
		out.Narrative = schema.NarrativeDefault
	}
	return out
}

func nonEmpty(items []string, placeholder string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return []string{placeholder}
	}
	return out
}

// MarshalJSON renders the payload with its kind-specific field names in
// schema order.
func (p Payload) MarshalJSON() ([]byte, error) {
	schema := SchemaFor(p.Kind)
	doc := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, path, v)
	}
	set(FieldOverallScore, p.OverallScore)
	for _, f := range schema.SecondaryScores {
		set(f, p.Scores[f])
	}
	set(schema.StrengthsField, orEmpty(p.Strengths))
	set(schema.ConcernsField, orEmpty(p.Concerns))
	set(schema.NarrativeField, p.Narrative)
	set("source", string(p.Source))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return doc, nil
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// DecodePayload reads a payload previously produced by MarshalJSON.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	if !gjson.ValidBytes(raw) {
		return Payload{}, fmt.Errorf("decode payload: invalid json")
	}
	schema := SchemaFor(kind)
	doc := gjson.ParseBytes(raw)
	p := Payload{
		Kind:         schema.Kind,
		OverallScore: doc.Get(FieldOverallScore).Float(),
		Scores:       make(map[string]float64, len(schema.SecondaryScores)),
		Narrative:    doc.Get(schema.NarrativeField).String(),
		Source:       Source(doc.Get("source").String()),
	}
	for _, f := range schema.SecondaryScores {
		if v := doc.Get(f); v.Exists() {
			p.Scores[f] = v.Float()
		}
	}
	for _, it := range doc.Get(schema.StrengthsField).Array() {
		p.Strengths = append(p.Strengths, it.String())
	}
	for _, it := range doc.Get(schema.ConcernsField).Array() {
		p.Concerns = append(p.Concerns, it.String())
	}
	return p, nil
}
