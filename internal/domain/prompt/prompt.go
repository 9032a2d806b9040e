// Package prompt compiles subjects and analysis parameters into model prompts.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/okian/talentlens/internal/domain/model"
)

//go:embed templates/system.tmpl
var systemRaw string

//go:embed templates/employee.tmpl
var employeeRaw string

//go:embed templates/team.tmpl
var teamRaw string

var funcs = template.FuncMap{"join": strings.Join}

// Parsed once at package init; a broken template fails the process at start.
var (
	systemTemplate   = template.Must(template.New("system").Parse(systemRaw))
	employeeTemplate = template.Must(template.New("employee").Funcs(funcs).Parse(employeeRaw))
	teamTemplate     = template.Must(template.New("team").Funcs(funcs).Parse(teamRaw))
)

// Defaults fills narrative fields the subject leaves blank.
var Defaults = map[string]string{
	model.FieldPerformanceNarrative:   "No performance narrative was provided for this period.",
	model.FieldFeedbackNarrative:      "No peer or manager feedback was provided for this period.",
	model.FieldContributionNarrative:  "No contribution summary was provided for this period.",
	model.FieldCollaborationNarrative: "No collaboration notes were provided for this period.",
}

// Prompt is the compiled pair sent to a model.
type Prompt struct {
	System string
	User   string
}

// Compiler renders prompts. It holds no state; the zero value is ready to use.
type Compiler struct{}

// NewCompiler returns a Compiler.
func NewCompiler() *Compiler { return &Compiler{} }

type skillView struct {
	Name  string
	Level float64
}

type view struct {
	Params     model.Parameters
	Employee   *model.Employee
	Team       *model.Team
	Skills     []skillView
	Narratives map[string]string
}

type schemaView struct {
	Subject   string
	Overall   string
	Scores    []string
	Strengths string
	Concerns  string
	Narrative string
	Min       float64
	Max       float64
}

// Compile renders the system instruction and user prompt for subject.
// Output depends only on its inputs.
func (c *Compiler) Compile(subject model.Subject, params model.Parameters) Prompt {
	params = params.Normalized()
	return Prompt{
		System: renderSystem(subject.Kind),
		User:   renderUser(subject, params),
	}
}

func renderSystem(kind model.Kind) string {
	schema := model.SchemaFor(kind)
	sv := schemaView{
		Subject:   string(schema.Kind),
		Overall:   model.FieldOverallScore,
		Scores:    schema.SecondaryScores,
		Strengths: schema.StrengthsField,
		Concerns:  schema.ConcernsField,
		Narrative: schema.NarrativeField,
		Min:       model.MinScore,
		Max:       model.MaxScore,
	}
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, sv); err != nil {
		fields := append([]string{sv.Overall}, sv.Scores...)
		fields = append(fields, sv.Strengths, sv.Concerns, sv.Narrative)
		return fmt.Sprintf("Respond with a JSON object with fields: %s.", strings.Join(fields, ", "))
	}
	return buf.String()
}

func renderUser(subject model.Subject, params model.Parameters) string {
	v := view{Params: params, Narratives: make(map[string]string, len(Defaults))}
	tmpl := employeeTemplate
	switch {
	case subject.Employee != nil:
		e := subject.Employee
		v.Employee = e
		v.Skills = sortedSkills(e.Skills)
		v.Narratives[model.FieldPerformanceNarrative] = orDefault(model.FieldPerformanceNarrative, e.PerformanceNarrative)
		v.Narratives[model.FieldFeedbackNarrative] = orDefault(model.FieldFeedbackNarrative, e.FeedbackNarrative)
		v.Narratives[model.FieldContributionNarrative] = orDefault(model.FieldContributionNarrative, e.ContributionNarrative)
	case subject.Team != nil:
		t := subject.Team
		v.Team = t
		tmpl = teamTemplate
		v.Narratives[model.FieldCollaborationNarrative] = orDefault(model.FieldCollaborationNarrative, t.CollaborationNarrative)
		v.Narratives[model.FieldPerformanceNarrative] = orDefault(model.FieldPerformanceNarrative, t.PerformanceNarrative)
	default:
		return plain(subject, params)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return plain(subject, params)
	}
	return buf.String()
}

func orDefault(field, value string) string {
	if strings.TrimSpace(value) == "" {
		return Defaults[field]
	}
	return strings.TrimSpace(value)
}

func sortedSkills(skills map[string]float64) []skillView {
	out := make([]skillView, 0, len(skills))
	for name, level := range skills {
		out = append(out, skillView{Name: name, Level: level})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// plain is the last-resort rendering used when a template cannot execute.
func plain(subject model.Subject, params model.Parameters) string {
	return fmt.Sprintf("Analysis type: %s\nPeriod: %s\nSubject: %s %s (%s)\n",
		params.AnalysisKind, params.Period, subject.Kind, subject.ID(), subject.Name())
}
