package repository_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/talentlens/internal/adapters/repository"
	"github.com/okian/talentlens/internal/domain/model"
)

// fixedClock returns the same instant on every call so ordering relies on
// the store's own monotonic stamping.
func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func payload(kind model.Kind, source model.Source, score float64) model.Payload {
	return model.Payload{Kind: kind, OverallScore: score, Source: source}.Normalize()
}

func meta(source model.Source) model.Metadata {
	return model.NewMetadata(source, "req-1", "mock", "", model.Parameters{}.Normalized())
}

type storeFactory func(t *testing.T, opts ...repository.Option) repository.RecordStore

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, opts ...repository.Option) repository.RecordStore {
			return repository.NewMemoryStore(opts...)
		},
		"sqlite": func(t *testing.T, opts ...repository.Option) repository.RecordStore {
			s, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"), opts...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRecordStore_AppendAndHistory(t *testing.T) {
	for name, open := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, repository.WithClock(fixedClock()))

			var ids []string
			for i := 0; i < 5; i++ {
				rec, err := s.Append(ctx, model.KindEmployee, "E1", payload(model.KindEmployee, model.SourceMock, float64(i+1)), meta(model.SourceMock))
				require.NoError(t, err)
				require.NotEmpty(t, rec.ID)
				require.True(t, rec.Metadata.Succeeded)
				ids = append(ids, rec.ID)
			}
			_, err := s.Append(ctx, model.KindTeam, "E1", payload(model.KindTeam, model.SourceMock, 5), meta(model.SourceMock))
			require.NoError(t, err)

			hist := s.History(ctx, model.KindEmployee, "E1", 3)
			require.Len(t, hist, 3)
			require.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{hist[0].ID, hist[1].ID, hist[2].ID})
			for i := 1; i < len(hist); i++ {
				require.True(t, hist[i-1].Metadata.Timestamp.After(hist[i].Metadata.Timestamp))
			}
			require.Equal(t, 5.0, hist[0].Payload.OverallScore)
			require.Equal(t, model.KindEmployee, hist[0].SubjectKind)

			require.Empty(t, s.History(ctx, model.KindEmployee, "E1", 0))
			require.Empty(t, s.History(ctx, model.KindEmployee, "E1", -1))
			require.Empty(t, s.History(ctx, model.KindEmployee, "nobody", 10))
			require.NotNil(t, s.History(ctx, model.KindEmployee, "nobody", 10))

			latest, ok := s.Latest(ctx, model.KindEmployee, "E1")
			require.True(t, ok)
			require.Equal(t, ids[4], latest.ID)
			_, ok = s.Latest(ctx, model.KindTeam, "T9")
			require.False(t, ok)

			require.Equal(t, 6, s.Count(ctx))
		})
	}
}

func TestRecordStore_Eviction(t *testing.T) {
	for name, open := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, repository.WithCapacity(1000))

			var first string
			for i := 0; i < 1001; i++ {
				rec, err := s.Append(ctx, model.KindEmployee, fmt.Sprintf("E%d", i%7), payload(model.KindEmployee, model.SourceMock, 7), meta(model.SourceMock))
				require.NoError(t, err)
				if i == 0 {
					first = rec.ID
				}
			}

			require.Equal(t, 1000, s.Count(ctx))
			for _, r := range s.History(ctx, model.KindEmployee, "E0", 1000) {
				require.NotEqual(t, first, r.ID)
			}
			require.Len(t, s.History(ctx, model.KindEmployee, "E0", 1000), 142)
		})
	}
}

func TestRecordStore_Stats(t *testing.T) {
	for name, open := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, repository.WithCapacity(50))

			_, err := s.Append(ctx, model.KindEmployee, "E1", payload(model.KindEmployee, model.SourceLiveModel, 8), meta(model.SourceLiveModel))
			require.NoError(t, err)
			rec, err := s.Append(ctx, model.KindTeam, "T1", payload(model.KindTeam, model.SourceErrorFallback, 7), meta(model.SourceErrorFallback))
			require.NoError(t, err)
			require.False(t, rec.Metadata.Succeeded)

			st := s.Stats(ctx)
			require.Equal(t, 2, st.Total)
			require.Equal(t, 2, st.Last7Days)
			require.Equal(t, 2, st.ThisMonth)
			require.Equal(t, 50, st.Capacity)
			require.Equal(t, 1, st.ByKind[model.KindEmployee])
			require.Equal(t, 1, st.ByKind[model.KindTeam])
			require.Equal(t, 1, st.BySource[model.SourceErrorFallback])
			require.Equal(t, 0, st.BySource[model.SourceMock])
		})
	}
}

func TestRecordStore_ConcurrentAppend(t *testing.T) {
	for name, open := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, repository.WithCapacity(20), repository.WithClock(fixedClock()))

			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Append(ctx, model.KindEmployee, "E1", payload(model.KindEmployee, model.SourceMock, 6), meta(model.SourceMock))
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			hist := s.History(ctx, model.KindEmployee, "E1", 100)
			require.Len(t, hist, 20)
			seen := map[string]bool{}
			for i, r := range hist {
				require.False(t, seen[r.ID])
				seen[r.ID] = true
				if i > 0 {
					require.True(t, hist[i-1].Metadata.Timestamp.After(r.Metadata.Timestamp))
				}
			}
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := repository.OpenSQLite(ctx, path, repository.WithClock(fixedClock()))
	require.NoError(t, err)
	first, err := s.Append(ctx, model.KindTeam, "T1", payload(model.KindTeam, model.SourceParsedFallback, 4.5), meta(model.SourceParsedFallback))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = repository.OpenSQLite(ctx, path, repository.WithClock(fixedClock()))
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.Latest(ctx, model.KindTeam, "T1")
	require.True(t, ok)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, 4.5, got.Payload.OverallScore)
	require.Equal(t, first.Payload.Concerns, got.Payload.Concerns)
	require.Equal(t, model.SourceParsedFallback, got.Metadata.Source)
	require.True(t, first.Metadata.Timestamp.Equal(got.Metadata.Timestamp))

	second, err := s.Append(ctx, model.KindTeam, "T1", payload(model.KindTeam, model.SourceMock, 6), meta(model.SourceMock))
	require.NoError(t, err)
	require.True(t, second.Metadata.Timestamp.After(first.Metadata.Timestamp))
}

func TestSQLiteStore_ClosedWrites(t *testing.T) {
	ctx := context.Background()
	s, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Append(ctx, model.KindEmployee, "E1", payload(model.KindEmployee, model.SourceMock, 5), meta(model.SourceMock))
	require.Error(t, err)
	require.Empty(t, s.History(ctx, model.KindEmployee, "E1", 10))
	require.Equal(t, 0, s.Count(ctx))

	_, err = repository.OpenSQLite(ctx, "  ")
	require.Error(t, err)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := repository.NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Append(context.Background(), model.KindEmployee, "E1", payload(model.KindEmployee, model.SourceMock, 5), meta(model.SourceMock))
	require.ErrorIs(t, err, repository.ErrClosed)
}

func TestSQLiteStore_SubjectsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")
	seed, err := repository.LoadSeed("")
	require.NoError(t, err)

	s, err := repository.OpenSQLite(ctx, path)
	require.NoError(t, err)
	dir, err := repository.NewDirectory(seed.Subjects()...)
	require.NoError(t, err)
	require.NoError(t, dir.Persist(ctx, s))
	require.NoError(t, dir.Put(ctx, model.EmployeeSubject(model.Employee{ID: "E90", Name: "Ines", Skills: map[string]float64{"go": 0.4}})))
	require.NoError(t, dir.Put(ctx, model.TeamSubject(model.Team{ID: "T1", Name: "Renamed"})))
	require.NoError(t, s.Close())

	s, err = repository.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	dir, err = repository.NewDirectory(seed.Subjects()...)
	require.NoError(t, err)
	_, err = dir.Get(ctx, model.KindEmployee, "E90")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, dir.Persist(ctx, s))
	got, err := dir.Get(ctx, model.KindEmployee, "E90")
	require.NoError(t, err)
	require.Equal(t, "Ines", got.Name())
	require.Equal(t, 0.4, got.Employee.Skills["go"])
	team, err := dir.Get(ctx, model.KindTeam, "T1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", team.Name())
	_, err = dir.Get(ctx, model.KindEmployee, "E1")
	require.NoError(t, err)
}
