// Package service orchestrates the analysis pipeline and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/talentlens/internal/adapters/llm"
	"github.com/okian/talentlens/internal/adapters/repository"
	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/internal/domain/prompt"
	"github.com/okian/talentlens/pkg/logger"
)

// Defaults for request shaping.
const (
	DefaultHistoryLimit     = 10
	DefaultMaxHistoryLimit  = 100
	DefaultBatchConcurrency = 1
	DefaultMaxBatchSize     = 50
)

// ErrInvalidRequest is returned for requests the service refuses to run,
// such as an empty or oversized batch.
var ErrInvalidRequest = errors.New("invalid request")

// SubjectDirectory stores the subjects that can be analyzed.
type SubjectDirectory interface {
	Get(ctx context.Context, kind model.Kind, id string) (model.Subject, error)
	List(ctx context.Context, kind model.Kind) []model.Subject
	Put(ctx context.Context, s model.Subject) error
	Count(kind model.Kind) int
}

// Compiler turns a subject into prompts.
type Compiler interface {
	Compile(subject model.Subject, params model.Parameters) prompt.Prompt
}

// Invoker calls the model or degrades to a generated payload.
type Invoker interface {
	Invoke(ctx context.Context, subject model.Subject, params model.Parameters, p prompt.Prompt) llm.Outcome
	ProviderName() string
	Live() bool
}

// Interpreter validates a raw model reply.
type Interpreter interface {
	Interpret(ctx context.Context, kind model.Kind, raw string) model.Payload
}

// Service wires the directory, compiler, invoker, interpreter and record store.
type Service struct {
	directory   SubjectDirectory
	store       repository.RecordStore
	compiler    Compiler
	invoker     Invoker
	interpreter Interpreter

	batchConcurrency int
	maxBatchSize     int
	maxHistoryLimit  int
	newRequestID     func() string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBatchConcurrency bounds how many batch items run at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithMaxBatchSize caps the number of ids accepted by a batch or comparison.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithMaxHistoryLimit caps the history limit a caller may request.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithRequestIDs replaces the request id generator.
func WithRequestIDs(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newRequestID = gen
		}
	}
}

// New constructs a Service.
func New(dir SubjectDirectory, store repository.RecordStore, compiler Compiler, invoker Invoker, interpreter Interpreter, opts ...Option) *Service {
	s := &Service{
		directory:        dir,
		store:            store,
		compiler:         compiler,
		invoker:          invoker,
		interpreter:      interpreter,
		batchConcurrency: DefaultBatchConcurrency,
		maxBatchSize:     DefaultMaxBatchSize,
		maxHistoryLimit:  DefaultMaxHistoryLimit,
		newRequestID:     uuid.NewString,
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the record store.
func (s *Service) Close() error {
	return s.store.Close()
}

// SubjectDetail is a subject with its most recent analysis, if any.
type SubjectDetail struct {
	Subject model.Subject `json:"subject"`
	Latest  *model.Record `json:"latest"`
}

// ListSubjects returns every subject of kind.
func (s *Service) ListSubjects(ctx context.Context, kind model.Kind) []model.Subject {
	return s.directory.List(ctx, kind)
}

// GetSubject returns the subject and its latest record.
func (s *Service) GetSubject(ctx context.Context, kind model.Kind, id string) (SubjectDetail, error) {
	subject, err := s.directory.Get(ctx, kind, id)
	if err != nil {
		return SubjectDetail{}, err
	}
	detail := SubjectDetail{Subject: subject}
	if rec, ok := s.store.Latest(ctx, kind, id); ok {
		detail.Latest = &rec
	}
	return detail, nil
}

// PutSubject creates or replaces a subject.
func (s *Service) PutSubject(ctx context.Context, subject model.Subject) error {
	if err := s.directory.Put(ctx, subject); err != nil {
		return err
	}
	s.logger.Info(ctx, "subject stored",
		logger.String("kind", string(subject.Kind)),
		logger.String("subjectId", subject.ID()),
	)
	return nil
}

// History returns up to limit records for the subject, newest first. The
// limit is capped at the configured maximum.
func (s *Service) History(ctx context.Context, kind model.Kind, id string, limit int) ([]model.Record, error) {
	if _, err := s.directory.Get(ctx, kind, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, kind, id, s.HistoryLimit(limit)), nil
}

// HistoryLimit returns the limit History applies for a requested limit.
func (s *Service) HistoryLimit(limit int) int {
	return min(limit, s.maxHistoryLimit)
}

// StatsReport extends the record stats with directory and provider state.
type StatsReport struct {
	model.Stats
	Subjects  map[model.Kind]int `json:"subjects"`
	Provider  string             `json:"provider"`
	LiveModel bool               `json:"liveModel"`
}

// Stats aggregates the record store.
func (s *Service) Stats(ctx context.Context) StatsReport {
	return StatsReport{
		Stats:     s.store.Stats(ctx),
		Subjects:  s.subjectCounts(),
		Provider:  s.invoker.ProviderName(),
		LiveModel: s.invoker.Live(),
	}
}

// HealthReport is returned by the health endpoint.
type HealthReport struct {
	Status    string             `json:"status"`
	Provider  string             `json:"provider"`
	LiveModel bool               `json:"liveModel"`
	Records   int                `json:"records"`
	Subjects  map[model.Kind]int `json:"subjects"`
}

// Health reports liveness and a few cheap counters.
func (s *Service) Health(ctx context.Context) HealthReport {
	return HealthReport{
		Status:    "ok",
		Provider:  s.invoker.ProviderName(),
		LiveModel: s.invoker.Live(),
		Records:   s.store.Count(ctx),
		Subjects:  s.subjectCounts(),
	}
}

func (s *Service) subjectCounts() map[model.Kind]int {
	return map[model.Kind]int{
		model.KindEmployee: s.directory.Count(model.KindEmployee),
		model.KindTeam:     s.directory.Count(model.KindTeam),
	}
}

func (s *Service) checkIDs(ids []string) error {
	switch {
	case len(ids) == 0:
		return fmt.Errorf("%w: ids must not be empty", ErrInvalidRequest)
	case len(ids) > s.maxBatchSize:
		return fmt.Errorf("%w: %d ids exceeds the limit of %d", ErrInvalidRequest, len(ids), s.maxBatchSize)
	}
	return nil
}
