package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

// stamper hands out strictly increasing UTC timestamps at microsecond
// resolution. Callers hold the store lock.
type stamper struct {
	now  func() time.Time
	last time.Time
}

func (s *stamper) next() time.Time {
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}

func newRecord(ts time.Time, kind model.Kind, subjectID string, payload model.Payload, meta model.Metadata) model.Record {
	meta.Timestamp = ts
	meta.Succeeded = meta.Source != model.SourceErrorFallback
	return model.Record{
		ID:          uuid.NewString(),
		SubjectKind: kind,
		SubjectID:   subjectID,
		Payload:     payload,
		Metadata:    meta,
	}
}

// MemoryStore keeps the record log in a fixed-size ring buffer.
type MemoryStore struct {
	mu       sync.RWMutex
	buf      []model.Record
	start    int
	size     int
	capacity int
	stamp    stamper
	log      logger.Logger
	closed   bool
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := newStoreConfig(opts)
	return &MemoryStore{
		buf:      make([]model.Record, cfg.capacity),
		capacity: cfg.capacity,
		stamp:    stamper{now: cfg.now},
		log:      cfg.log,
	}
}

// Append implements RecordStore.
func (s *MemoryStore) Append(ctx context.Context, kind model.Kind, subjectID string, payload model.Payload, meta model.Metadata) (model.Record, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.RecordStoreError("append")
		return model.Record{}, ErrClosed
	}

	rec := newRecord(s.stamp.next(), kind, subjectID, payload, meta)
	evicted := 0
	if s.size == s.capacity {
		s.buf[s.start] = model.Record{}
		s.start = (s.start + 1) % s.capacity
		s.size--
		evicted = 1
	}
	s.buf[(s.start+s.size)%s.capacity] = rec
	s.size++

	metrics.RecordEvictions(evicted)
	metrics.UpdateRecordStoreSize(s.size)
	metrics.RecordAppendLatency(time.Since(start))
	s.log.Debug(ctx, "record appended",
		logger.String("id", rec.ID),
		logger.String("kind", string(kind)),
		logger.String("subject", subjectID),
		logger.Int("size", s.size),
		logger.Int("evicted", evicted),
	)
	return rec, nil
}

// at returns the i-th oldest record.
func (s *MemoryStore) at(i int) model.Record {
	return s.buf[(s.start+i)%s.capacity]
}

// History implements RecordStore. Records are appended in timestamp order,
// so walking from the newest end yields descending timestamps.
func (s *MemoryStore) History(_ context.Context, kind model.Kind, subjectID string, limit int) []model.Record {
	out := []model.Record{}
	if limit <= 0 {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := s.size - 1; i >= 0 && len(out) < limit; i-- {
		if r := s.at(i); r.SubjectKind == kind && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out
}

// Latest implements RecordStore.
func (s *MemoryStore) Latest(ctx context.Context, kind model.Kind, subjectID string) (model.Record, bool) {
	recs := s.History(ctx, kind, subjectID, 1)
	if len(recs) == 0 {
		return model.Record{}, false
	}
	return recs[0], true
}

// Stats implements RecordStore.
func (s *MemoryStore) Stats(_ context.Context) model.Stats {
	s.mu.RLock()
	recs := make([]model.Record, 0, s.size)
	for i := 0; i < s.size; i++ {
		recs = append(recs, s.at(i))
	}
	s.mu.RUnlock()
	return model.Aggregate(recs, s.capacity, s.stamp.now().UTC())
}

// Count implements RecordStore.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Close implements RecordStore. Further appends fail; reads keep working.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
