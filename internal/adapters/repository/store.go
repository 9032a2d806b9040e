// Package repository holds the analysis record log and the subject directory.
package repository

import (
	"context"

	"github.com/okian/talentlens/internal/domain/model"
)

// DefaultCapacity bounds the record log when no capacity is configured.
const DefaultCapacity = 1000

// RecordStore is the append-only analysis log. All kinds share one log
// bounded by capacity; the oldest record is evicted first.
type RecordStore interface {
	// Append stores a new record with a fresh id and a timestamp strictly
	// later than any earlier record. Write failures are returned.
	Append(ctx context.Context, kind model.Kind, subjectID string, payload model.Payload, meta model.Metadata) (model.Record, error)

	// History returns up to limit records for the subject, newest first.
	// limit <= 0 yields an empty slice. Read failures yield an empty slice.
	History(ctx context.Context, kind model.Kind, subjectID string, limit int) []model.Record

	// Latest returns the newest record for the subject.
	Latest(ctx context.Context, kind model.Kind, subjectID string) (model.Record, bool)

	// Stats aggregates the whole log.
	Stats(ctx context.Context) model.Stats

	// Count returns the number of retained records.
	Count(ctx context.Context) int

	Close() error
}
