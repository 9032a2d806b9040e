// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind tags which variant a Subject carries.
type Kind string

// Supported subject kinds.
const (
	KindEmployee Kind = "employee"
	KindTeam     Kind = "team"
)

// ErrUnknownKind is returned when a kind string does not name a supported subject kind.
var ErrUnknownKind = errors.New("unknown subject kind")

// ParseKind validates a raw kind string (case-insensitive).
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindEmployee:
		return KindEmployee, nil
	case KindTeam:
		return KindTeam, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Employee is an individual contributor under analysis.
type Employee struct {
	ID                    string             `json:"id" yaml:"id"`
	Name                  string             `json:"name" yaml:"name"`
	Role                  string             `json:"role" yaml:"role"`
	Department            string             `json:"department" yaml:"department"`
	ExperienceYears       float64            `json:"experienceYears" yaml:"experience_years"`
	Skills                map[string]float64 `json:"skills" yaml:"skills"` // proficiency 0..1
	PerformanceNarrative  string             `json:"performanceNarrative,omitempty" yaml:"performance_narrative"`
	FeedbackNarrative     string             `json:"feedbackNarrative,omitempty" yaml:"feedback_narrative"`
	ContributionNarrative string             `json:"contributionNarrative,omitempty" yaml:"contribution_narrative"`
}

// MemberRef points a team at one of its members.
type MemberRef struct {
	SubjectRef string `json:"subjectRef" yaml:"subject_ref"`
	Role       string `json:"role" yaml:"role"`
}

// Team is a group of employees analyzed as a unit.
type Team struct {
	ID                     string      `json:"id" yaml:"id"`
	Name                   string      `json:"name" yaml:"name"`
	Department             string      `json:"department" yaml:"department"`
	MemberRefs             []MemberRef `json:"memberRefs" yaml:"members"`
	CollaborationNarrative string      `json:"collaborationNarrative,omitempty" yaml:"collaboration_narrative"`
	PerformanceNarrative   string      `json:"performanceNarrative,omitempty" yaml:"performance_narrative"`
}

// Subject is the tagged union of everything that can be analyzed.
// Exactly one of Employee or Team is set, matching Kind.
type Subject struct {
	Kind     Kind      `json:"kind"`
	Employee *Employee `json:"employee,omitempty"`
	Team     *Team     `json:"team,omitempty"`
}

// EmployeeSubject wraps e as a Subject.
func EmployeeSubject(e Employee) Subject {
	return Subject{Kind: KindEmployee, Employee: &e}
}

// TeamSubject wraps t as a Subject.
func TeamSubject(t Team) Subject {
	return Subject{Kind: KindTeam, Team: &t}
}

// ID returns the identifier of whichever variant is set.
func (s Subject) ID() string {
	switch {
	case s.Kind == KindEmployee && s.Employee != nil:
		return s.Employee.ID
	case s.Kind == KindTeam && s.Team != nil:
		return s.Team.ID
	}
	return ""
}

// Name returns the display name of whichever variant is set.
func (s Subject) Name() string {
	switch {
	case s.Kind == KindEmployee && s.Employee != nil:
		return s.Employee.Name
	case s.Kind == KindTeam && s.Team != nil:
		return s.Team.Name
	}
	return ""
}

// Validate checks that the tag matches the populated variant and the id is set.
func (s Subject) Validate() error {
	switch s.Kind {
	case KindEmployee:
		if s.Employee == nil || s.Team != nil {
			return errors.New("employee subject must carry only employee data")
		}
		for skill, p := range s.Employee.Skills {
			if math.IsNaN(p) || p < 0 || p > 1 {
				return fmt.Errorf("skill %q proficiency %.2f outside 0..1", skill, p)
			}
		}
	case KindTeam:
		if s.Team == nil || s.Employee != nil {
			return errors.New("team subject must carry only team data")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if strings.TrimSpace(s.ID()) == "" {
		return errors.New("missing subject id")
	}
	return nil
}

// Clone returns a deep copy so callers can mutate narratives without touching shared state.
func (s Subject) Clone() Subject {
	out := Subject{Kind: s.Kind}
	if s.Employee != nil {
		e := *s.Employee
		if s.Employee.Skills != nil {
			e.Skills = make(map[string]float64, len(s.Employee.Skills))
			for k, v := range s.Employee.Skills {
				e.Skills[k] = v
			}
		}
		out.Employee = &e
	}
	if s.Team != nil {
		t := *s.Team
		t.MemberRefs = append([]MemberRef(nil), s.Team.MemberRefs...)
		out.Team = &t
	}
	return out
}
