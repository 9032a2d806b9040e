// Package smoke drives a running talentlens server over HTTP and checks the
// pipeline invariants from the outside.
package smoke

import (
	"time"

	"github.com/okian/talentlens/internal/domain/model"
)

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL string        // Base URL of the service
	Kinds   []model.Kind  // Subject kinds to exercise
	Rounds  int           // Analyses per subject
	Workers int           // Concurrent analyze requests
	Timeout time.Duration // HTTP request timeout
	Verbose bool          // Log every request
}

// Defaults for a smoke run.
const (
	DefaultRounds  = 2
	DefaultWorkers = 4
	DefaultTimeout = 90 * time.Second
)

func (c Config) withDefaults() Config {
	if len(c.Kinds) == 0 {
		c.Kinds = []model.Kind{model.KindEmployee, model.KindTeam}
	}
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Report summarises a smoke run.
type Report struct {
	Subjects  int                  `json:"subjects"`
	Analyses  int                  `json:"analyses"`
	Failed    int                  `json:"failed"`
	BySource  map[model.Source]int `json:"bySource"`
	Checks    []string             `json:"checks"`
	StartTime time.Time            `json:"startTime"`
	Duration  time.Duration        `json:"duration"`
}

func (r *Report) passed(check string) {
	r.Checks = append(r.Checks, check)
}
