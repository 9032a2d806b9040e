// Package scoring produces deterministic analyses without calling a model.
// The result depends only on the subject and parameters so offline runs and
// fallbacks are reproducible.
package scoring

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/okian/talentlens/internal/domain/model"
)

// Default generator configuration constants.
const (
	defaultBaseline   = 6.0
	defaultSpread     = 3.0
	defaultJitter     = 0.5
	maxListItems      = 3
	weakSkillCutoff   = 0.6
	seniorYears       = 10.0
	fullTeamSize      = 8.0
	smallTeamSize     = 3
	defaultSkillLevel = 0.5
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithBaseline sets the score a subject with no signal receives.
func WithBaseline(v float64) Option {
	return func(g *Generator) {
		if v >= model.MinScore && v <= model.MaxScore {
			g.baseline = v
		}
	}
}

// WithSpread sets how far subject signal can move a score above the baseline.
func WithSpread(v float64) Option {
	return func(g *Generator) {
		if v >= 0 {
			g.spread = v
		}
	}
}

// WithJitter sets the per-subject deterministic variation.
func WithJitter(v float64) Option {
	return func(g *Generator) {
		if v >= 0 {
			g.jitter = v
		}
	}
}

// Generator builds payloads from subject data alone.
type Generator struct {
	baseline float64
	spread   float64
	jitter   float64
}

// NewGenerator creates a generator with configuration options.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		baseline: defaultBaseline,
		spread:   defaultSpread,
		jitter:   defaultJitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a normalized payload tagged with source.
func (g *Generator) Generate(subject model.Subject, params model.Parameters, source model.Source) model.Payload {
	params = params.Normalized()
	var p model.Payload
	switch {
	case subject.Employee != nil:
		p = g.employee(*subject.Employee, params)
	case subject.Team != nil:
		p = g.team(*subject.Team, params)
	default:
		p = model.Payload{Kind: subject.Kind, OverallScore: model.NeutralScore}
	}
	p.Source = source
	return p.Normalize()
}

func (g *Generator) employee(e model.Employee, params model.Parameters) model.Payload {
	schema := model.SchemaFor(model.KindEmployee)
	skillAvg := defaultSkillLevel
	if len(e.Skills) > 0 {
		sum := 0.0
		for _, v := range e.Skills {
			sum += v
		}
		skillAvg = sum / float64(len(e.Skills))
	}
	experience := math.Min(e.ExperienceYears/seniorYears, 1)
	signal := 0.6*skillAvg + 0.4*experience

	p := model.Payload{
		Kind:         model.KindEmployee,
		OverallScore: g.score(e.ID, "overall", signal),
		Scores:       make(map[string]float64, len(schema.SecondaryScores)),
	}
	p.Scores["performanceScore"] = g.score(e.ID, "performance", skillAvg)
	p.Scores["potentialScore"] = g.score(e.ID, "potential", 1-experience/2)
	p.Scores["collaborationScore"] = g.score(e.ID, "collaboration", signal)

	skills := rankSkills(e.Skills)
	for i := 0; i < len(skills) && i < maxListItems; i++ {
		if skills[i].level >= weakSkillCutoff {
			p.Strengths = append(p.Strengths, fmt.Sprintf("Strong proficiency in %s", skills[i].name))
		}
	}
	for i := len(skills) - 1; i >= 0 && len(p.Concerns) < maxListItems; i-- {
		if skills[i].level < weakSkillCutoff {
			p.Concerns = append(p.Concerns, fmt.Sprintf("Build deeper proficiency in %s", skills[i].name))
		}
	}
	p.Narrative = plan(fmt.Sprintf("Over the %s period, %s should consolidate strengths as %s", params.Period, nameOr(e.Name, e.ID), articleRole(e.Role)), params.FocusAreas)
	return p
}

func (g *Generator) team(t model.Team, params model.Parameters) model.Payload {
	schema := model.SchemaFor(model.KindTeam)
	size := len(t.MemberRefs)
	staffing := math.Min(float64(size)/fullTeamSize, 1)
	evidence := 0.0
	if strings.TrimSpace(t.CollaborationNarrative) != "" {
		evidence += 0.5
	}
	if strings.TrimSpace(t.PerformanceNarrative) != "" {
		evidence += 0.5
	}
	signal := 0.5*staffing + 0.5*evidence

	p := model.Payload{
		Kind:         model.KindTeam,
		OverallScore: g.score(t.ID, "overall", signal),
		Scores:       make(map[string]float64, len(schema.SecondaryScores)),
	}
	p.Scores["collaborationScore"] = g.score(t.ID, "collaboration", evidence)
	p.Scores["productivityScore"] = g.score(t.ID, "productivity", staffing)
	p.Scores["cohesionScore"] = g.score(t.ID, "cohesion", signal)
	p.Scores["innovationScore"] = g.score(t.ID, "innovation", defaultSkillLevel)

	roles := distinctRoles(t.MemberRefs)
	if len(roles) > 1 {
		p.Strengths = append(p.Strengths, fmt.Sprintf("Mixed composition across %d roles: %s", len(roles), strings.Join(roles, ", ")))
	}
	if size >= smallTeamSize {
		p.Strengths = append(p.Strengths, fmt.Sprintf("Sufficient staffing with %d members", size))
	} else {
		p.Concerns = append(p.Concerns, fmt.Sprintf("Small team of %d members limits coverage", size))
	}
	if strings.TrimSpace(t.CollaborationNarrative) == "" {
		p.Concerns = append(p.Concerns, "Limited collaboration evidence on record")
	}
	p.Narrative = plan(fmt.Sprintf("Over the %s period, %s should keep delivery steady and review working agreements", params.Period, nameOr(t.Name, t.ID)), params.FocusAreas)
	return p
}

// score maps signal in [0,1] onto the configured range and adds a stable
// per-subject offset.
func (g *Generator) score(id, dimension string, signal float64) float64 {
	signal = math.Max(0, math.Min(1, signal))
	v := g.baseline + g.spread*signal + g.offset(id, dimension)
	return math.Round(model.ClampScore(v)*10) / 10
}

func (g *Generator) offset(id, dimension string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id + "/" + dimension))
	unit := float64(h.Sum32()%1000) / 999.0
	return (unit*2 - 1) * g.jitter
}

type skill struct {
	name  string
	level float64
}

// rankSkills orders by level descending, then name.
func rankSkills(m map[string]float64) []skill {
	out := make([]skill, 0, len(m))
	for n, l := range m {
		out = append(out, skill{name: n, level: l})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].level != out[j].level {
			return out[i].level > out[j].level
		}
		return out[i].name < out[j].name
	})
	return out
}

func distinctRoles(refs []model.MemberRef) []string {
	seen := make(map[string]struct{}, len(refs))
	var out []string
	for _, r := range refs {
		role := strings.TrimSpace(r.Role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func plan(lead string, focus []string) string {
	if len(focus) == 0 {
		return lead + "."
	}
	return fmt.Sprintf("%s, with particular attention to %s.", lead, strings.Join(focus, ", "))
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func articleRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return "a team member"
	}
	switch strings.ToLower(role[:1]) {
	case "a", "e", "i", "o", "u":
		return "an " + role
	}
	return "a " + role
}
