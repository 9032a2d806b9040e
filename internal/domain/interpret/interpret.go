// Package interpret turns free-form model replies into validated payloads.
package interpret

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

// DefaultExcerptRunes bounds the raw reply kept in a parsed-fallback narrative.
const DefaultExcerptRunes = 500

// Option applies a configuration option to the Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for correction diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(i *Interpreter) {
		if l != nil {
			i.log = l
		}
	}
}

// WithExcerptRunes sets how much of an unparseable reply is kept.
func WithExcerptRunes(n int) Option {
	return func(i *Interpreter) {
		if n > 0 {
			i.excerpt = n
		}
	}
}

// Interpreter validates model replies against the payload schema of a kind.
type Interpreter struct {
	log     logger.Logger
	excerpt int
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{log: logger.Nop(), excerpt: DefaultExcerptRunes}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret never fails. A reply that parses as a JSON object yields a
// live-model payload with every field validated; anything else yields a
// parsed-fallback payload carrying an excerpt of the reply.
func (i *Interpreter) Interpret(ctx context.Context, kind model.Kind, raw string) model.Payload {
	candidate := extract(raw)
	if !gjson.Valid(candidate) {
		return i.fallback(ctx, kind, raw)
	}
	doc := gjson.Parse(candidate)
	if !doc.IsObject() {
		return i.fallback(ctx, kind, raw)
	}

	schema := model.SchemaFor(kind)
	p := model.Payload{
		Kind:   schema.Kind,
		Scores: make(map[string]float64, len(schema.SecondaryScores)),
		Source: model.SourceLiveModel,
	}
	p.OverallScore = i.score(ctx, kind, doc, model.FieldOverallScore)
	for _, f := range schema.SecondaryScores {
		p.Scores[f] = i.score(ctx, kind, doc, f)
	}
	p.Strengths = i.list(ctx, kind, doc, schema.StrengthsField)
	p.Concerns = i.list(ctx, kind, doc, schema.ConcernsField)
	if n := lookup(doc, schema.NarrativeField); n.Type == gjson.String && strings.TrimSpace(n.Str) != "" {
		p.Narrative = n.Str
	} else {
		i.corrected(ctx, kind, schema.NarrativeField, "defaulted")
	}

	metrics.RecordInterpretOutcome(string(kind), string(model.SourceLiveModel))
	return p.Normalize()
}

func (i *Interpreter) fallback(ctx context.Context, kind model.Kind, raw string) model.Payload {
	i.log.Debug(ctx, "model reply is not a json object",
		logger.String("kind", string(kind)),
		logger.Int("replyLength", len(raw)),
	)
	metrics.RecordInterpretOutcome(string(kind), string(model.SourceParsedFallback))
	return model.Payload{
		Kind:         kind,
		OverallScore: model.NeutralScore,
		Narrative:    truncateRunes(strings.TrimSpace(raw), i.excerpt),
		Source:       model.SourceParsedFallback,
	}.Normalize()
}

func (i *Interpreter) score(ctx context.Context, kind model.Kind, doc gjson.Result, field string) float64 {
	v, ok := number(lookup(doc, field))
	if !ok {
		i.corrected(ctx, kind, field, "defaulted")
		return model.NeutralScore
	}
	if c := model.ClampScore(v); c != v {
		i.corrected(ctx, kind, field, "clamped")
		return c
	}
	return v
}

func (i *Interpreter) list(ctx context.Context, kind model.Kind, doc gjson.Result, field string) []string {
	v := lookup(doc, field)
	var out []string
	if v.IsArray() {
		for _, it := range v.Array() {
			switch it.Type {
			case gjson.String, gjson.Number:
				if s := strings.TrimSpace(it.String()); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	if len(out) == 0 {
		i.corrected(ctx, kind, field, "defaulted")
	}
	return out
}

func (i *Interpreter) corrected(ctx context.Context, kind model.Kind, field, how string) {
	i.log.Debug(ctx, "payload field corrected",
		logger.String("kind", string(kind)),
		logger.String("field", field),
		logger.String("correction", how),
	)
	metrics.RecordValidationCorrection(string(kind), field)
}

// lookup reads field by its camelCase name, then its snake_case alias.
func lookup(doc gjson.Result, field string) gjson.Result {
	if v := doc.Get(field); v.Exists() {
		return v
	}
	return doc.Get(snake(field))
}

func number(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		// Out-of-range input parses to ±Inf with ErrRange and is clamped later.
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func snake(camel string) string {
	var b strings.Builder
	for i, r := range camel {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}
	return s
}
