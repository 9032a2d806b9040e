package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/metrics"
)

// SaveSubject implements SubjectSink.
func (s *SQLiteStore) SaveSubject(ctx context.Context, subject model.Subject) error {
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO subjects (kind, id, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(subject.Kind), subject.ID(), string(data), time.Now().UTC().UnixMilli()); err != nil {
		metrics.RecordStoreError("save_subject")
		return fmt.Errorf("save subject %s %q: %w", subject.Kind, subject.ID(), err)
	}
	return nil
}

// LoadSubjects implements SubjectSink. Rows that fail to decode are skipped.
func (s *SQLiteStore) LoadSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, data FROM subjects ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	defer rows.Close()

	var out []model.Subject
	for rows.Next() {
		var kind, id, data string
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return nil, fmt.Errorf("load subjects: %w", err)
		}
		var subject model.Subject
		if err := json.Unmarshal([]byte(data), &subject); err != nil {
			s.readFailed(ctx, "load_subjects", fmt.Errorf("subject %s %q: %w", kind, id, err))
			continue
		}
		out = append(out, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	return out, nil
}
