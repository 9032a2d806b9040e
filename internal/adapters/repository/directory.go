package repository

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/metrics"
)

//go:embed seed/subjects.yaml
var defaultSeed []byte

// Seed is the YAML shape of the subject seed file.
type Seed struct {
	Employees []model.Employee `yaml:"employees"`
	Teams     []model.Team     `yaml:"teams"`
}

// Subjects flattens the seed into subjects.
func (s Seed) Subjects() []model.Subject {
	out := make([]model.Subject, 0, len(s.Employees)+len(s.Teams))
	for _, e := range s.Employees {
		out = append(out, model.EmployeeSubject(e))
	}
	for _, t := range s.Teams {
		out = append(out, model.TeamSubject(t))
	}
	return out
}

// DecodeSeed reads a seed document.
func DecodeSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("decode subject seed: %w", err)
	}
	return s, nil
}

// LoadSeed reads the seed at path, or the embedded default when path is empty.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return DecodeSeed(bytes.NewReader(defaultSeed))
	}
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open subject seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// SubjectSink persists subjects written through a Directory.
type SubjectSink interface {
	SaveSubject(ctx context.Context, s model.Subject) error
	LoadSubjects(ctx context.Context) ([]model.Subject, error)
}

// Directory is the subject catalogue. Subjects are created or replaced by
// Put and never deleted. Reads are served from memory; with a sink attached
// every Put is written through.
type Directory struct {
	mu       sync.RWMutex
	subjects map[model.Kind]map[string]model.Subject
	sink     SubjectSink
}

// NewDirectory creates a directory holding subjects.
func NewDirectory(subjects ...model.Subject) (*Directory, error) {
	d := &Directory{subjects: map[model.Kind]map[string]model.Subject{
		model.KindEmployee: {},
		model.KindTeam:     {},
	}}
	for _, s := range subjects {
		if err := d.Put(context.Background(), s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Persist loads the subjects held by sink over the current ones and writes
// every later Put through to it.
func (d *Directory) Persist(ctx context.Context, sink SubjectSink) error {
	stored, err := sink.LoadSubjects(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range stored {
		if err := s.Validate(); err != nil {
			continue
		}
		d.subjects[s.Kind][s.ID()] = s.Clone()
	}
	for kind, m := range d.subjects {
		metrics.UpdateSubjectCount(string(kind), len(m))
	}
	d.sink = sink
	return nil
}

// Put validates and stores a copy of s, replacing any subject with the same id.
func (d *Directory) Put(ctx context.Context, s model.Subject) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink != nil {
		if err := d.sink.SaveSubject(ctx, s); err != nil {
			return err
		}
	}
	d.subjects[s.Kind][s.ID()] = s.Clone()
	metrics.UpdateSubjectCount(string(s.Kind), len(d.subjects[s.Kind]))
	return nil
}

// Get returns a copy of the subject or ErrNotFound.
func (d *Directory) Get(_ context.Context, kind model.Kind, id string) (model.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.subjects[kind][id]
	if !ok {
		return model.Subject{}, fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
	}
	return s.Clone(), nil
}

// List returns copies of every subject of kind ordered by id.
func (d *Directory) List(_ context.Context, kind model.Kind) []model.Subject {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Subject, 0, len(d.subjects[kind]))
	for _, s := range d.subjects[kind] {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of subjects of kind.
func (d *Directory) Count(kind model.Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subjects[kind])
}
