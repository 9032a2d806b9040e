package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/talentlens/internal/adapters/repository/migrations"
	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

const (
	migrationTable = "schema_migrations"
	migrateUp      = "-- +migrate Up"
	migrateDown    = "-- +migrate Down"
)

// SQLiteStore persists the record log in a SQLite file. Append holds a mutex
// and runs insert plus eviction in one transaction keyed by an
// autoincrement sequence, so eviction order is insertion order.
type SQLiteStore struct {
	mu       sync.Mutex
	db       *sql.DB
	capacity int
	stamp    stamper
	log      logger.Logger
}

// OpenSQLite opens (or creates) the store at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cfg := newStoreConfig(opts)
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; readers share the same handle.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{db: db, capacity: cfg.capacity, stamp: stamper{now: cfg.now}, log: cfg.log}
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM analysis_records`).Scan(&last); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read last timestamp: %w", err)
	}
	if last.Valid {
		s.stamp.last = time.UnixMicro(last.Int64).UTC()
	}
	metrics.UpdateRecordStoreSize(s.Count(ctx))
	return s, nil
}

// applyMigrations executes each embedded migration at most once.
func applyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	up := strings.Index(content, migrateUp)
	if up < 0 {
		return content
	}
	body := content[up+len(migrateUp):]
	if down := strings.Index(body, migrateDown); down >= 0 {
		body = body[:down]
	}
	return body
}

// Append implements RecordStore.
func (s *SQLiteStore) Append(ctx context.Context, kind model.Kind, subjectID string, payload model.Payload, meta model.Metadata) (model.Record, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	prevLast := s.stamp.last
	rec := newRecord(s.stamp.next(), kind, subjectID, payload, meta)
	evicted, err := s.insert(ctx, rec)
	if err != nil {
		s.stamp.last = prevLast
		metrics.RecordStoreError("append")
		s.log.Error(ctx, "record append failed",
			logger.String("kind", string(kind)),
			logger.String("subject", subjectID),
			logger.Error(err),
		)
		return model.Record{}, err
	}

	metrics.RecordEvictions(evicted)
	metrics.RecordAppendLatency(time.Since(start))
	s.log.Debug(ctx, "record appended",
		logger.String("id", rec.ID),
		logger.String("kind", string(kind)),
		logger.String("subject", subjectID),
		logger.Int("evicted", evicted),
	)
	return rec, nil
}

func (s *SQLiteStore) insert(ctx context.Context, rec model.Record) (int, error) {
	payload, err := rec.Payload.MarshalJSON()
	if err != nil {
		return 0, err
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_records (id, subject_kind, subject_id, source, succeeded, created_at, payload, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.SubjectKind),
		rec.SubjectID,
		string(rec.Metadata.Source),
		rec.Metadata.Succeeded,
		rec.Metadata.Timestamp.UnixMicro(),
		string(payload),
		string(meta),
	); err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM analysis_records
		 WHERE seq <= (SELECT seq FROM analysis_records ORDER BY seq DESC LIMIT 1 OFFSET ?)`,
		s.capacity,
	)
	if err != nil {
		return 0, fmt.Errorf("evict records: %w", err)
	}
	evicted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict records: %w", err)
	}

	var size int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM analysis_records`).Scan(&size); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	metrics.UpdateRecordStoreSize(size)
	return int(evicted), nil
}

// History implements RecordStore.
func (s *SQLiteStore) History(ctx context.Context, kind model.Kind, subjectID string, limit int) []model.Record {
	if limit <= 0 {
		return []model.Record{}
	}
	return s.query(ctx, "history",
		`SELECT id, subject_kind, subject_id, payload, metadata FROM analysis_records
		 WHERE subject_kind = ? AND subject_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		string(kind), subjectID, limit)
}

// Latest implements RecordStore.
func (s *SQLiteStore) Latest(ctx context.Context, kind model.Kind, subjectID string) (model.Record, bool) {
	recs := s.History(ctx, kind, subjectID, 1)
	if len(recs) == 0 {
		return model.Record{}, false
	}
	return recs[0], true
}

// Stats implements RecordStore.
func (s *SQLiteStore) Stats(ctx context.Context) model.Stats {
	recs := s.query(ctx, "stats",
		`SELECT id, subject_kind, subject_id, payload, metadata FROM analysis_records ORDER BY seq`)
	return model.Aggregate(recs, s.capacity, s.stamp.now().UTC())
}

// Count implements RecordStore.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM analysis_records`).Scan(&n); err != nil {
		s.readFailed(ctx, "count", err)
		return 0
	}
	return n
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// query runs a record select. Failures are logged and yield an empty slice;
// rows that fail to decode are skipped.
func (s *SQLiteStore) query(ctx context.Context, op, q string, args ...any) []model.Record {
	out := []model.Record{}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.readFailed(ctx, op, err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec           model.Record
			kind          string
			payload, meta string
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.SubjectID, &payload, &meta); err != nil {
			s.readFailed(ctx, op, err)
			return []model.Record{}
		}
		rec.SubjectKind = model.Kind(kind)
		if rec.Payload, err = model.DecodePayload(rec.SubjectKind, []byte(payload)); err != nil {
			s.readFailed(ctx, op, fmt.Errorf("record %s: %w", rec.ID, err))
			continue
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			s.readFailed(ctx, op, fmt.Errorf("record %s: decode metadata: %w", rec.ID, err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		s.readFailed(ctx, op, err)
		return []model.Record{}
	}
	return out
}

func (s *SQLiteStore) readFailed(ctx context.Context, op string, err error) {
	metrics.RecordStoreError(op)
	s.log.Warn(ctx, "record store read failed", logger.String("op", op), logger.Error(err))
}
