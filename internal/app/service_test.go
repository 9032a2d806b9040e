package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/talentlens/internal/adapters/llm"
	"github.com/okian/talentlens/internal/adapters/repository"
	service "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/domain/interpret"
	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/internal/domain/prompt"
	"github.com/okian/talentlens/internal/domain/scoring"
)

type stubProvider struct {
	calls atomic.Int32
	reply func(ctx context.Context) (string, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, _ prompt.Prompt) (string, error) {
	p.calls.Add(1)
	return p.reply(ctx)
}

type fixture struct {
	svc   *service.Service
	store repository.RecordStore
	dir   *repository.Directory
}

func newFixture(provider llm.Provider, cfg llm.Config, opts ...service.Option) fixture {
	seed, err := repository.LoadSeed("")
	So(err, ShouldBeNil)
	dir, err := repository.NewDirectory(seed.Subjects()...)
	So(err, ShouldBeNil)

	var invOpts []llm.Option
	if provider != nil {
		invOpts = append(invOpts, llm.WithProvider(provider))
	}
	inv, err := llm.NewInvoker(cfg, scoring.NewGenerator(), invOpts...)
	So(err, ShouldBeNil)

	store := repository.NewMemoryStore()
	svc := service.New(dir, store, prompt.NewCompiler(), inv, interpret.New(), opts...)
	return fixture{svc: svc, store: store, dir: dir}
}

func assertWellFormed(p model.Payload) {
	So(model.Sources, ShouldContain, p.Source)
	So(p.OverallScore, ShouldBeBetweenOrEqual, model.MinScore, model.MaxScore)
	for _, v := range p.Scores {
		So(v, ShouldBeBetweenOrEqual, model.MinScore, model.MaxScore)
	}
	So(p.Strengths, ShouldNotBeEmpty)
	So(p.Concerns, ShouldNotBeEmpty)
	So(p.Narrative, ShouldNotBeBlank)
}

func TestService_AnalyzeOne(t *testing.T) {
	ctx := context.Background()

	Convey("Given no model credential", t, func() {
		f := newFixture(nil, llm.Config{})

		Convey("When analyzing E1 with empty parameters", func() {
			a, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E1", model.Parameters{})

			Convey("Then a mock payload is recorded", func() {
				So(err, ShouldBeNil)
				So(a.Payload.Source, ShouldEqual, model.SourceMock)
				assertWellFormed(a.Payload)
				So(a.Metadata.Succeeded, ShouldBeTrue)
				So(a.Metadata.RequestID, ShouldNotBeBlank)
				So(a.Metadata.Parameters.AnalysisKind, ShouldEqual, model.DefaultAnalysisKind)
				So(a.Subject.ID(), ShouldEqual, "E1")

				latest, ok := f.store.Latest(ctx, model.KindEmployee, "E1")
				So(ok, ShouldBeTrue)
				So(latest.ID, ShouldEqual, a.RecordID)
			})
		})

		Convey("When analyzing the same subject twice", func() {
			first, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E1", model.Parameters{Period: "Q1"})
			So(err, ShouldBeNil)
			second, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E1", model.Parameters{Period: "Q2"})
			So(err, ShouldBeNil)

			Convey("Then both records are kept", func() {
				So(first.RecordID, ShouldNotEqual, second.RecordID)
				hist, err := f.svc.History(ctx, model.KindEmployee, "E1", 10)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 2)
				So(hist[0].Metadata.Parameters.Period, ShouldEqual, "Q2")
			})
		})

		Convey("When analyzing an unknown subject", func() {
			_, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "BAD_ID", model.Parameters{})

			Convey("Then ErrNotFound is returned and nothing is stored", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(f.store.Count(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the record store rejects writes", func() {
			So(f.store.Close(), ShouldBeNil)
			_, err := f.svc.AnalyzeOne(ctx, model.KindTeam, "T1", model.Parameters{})

			Convey("Then the write failure is returned", func() {
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given a caller that has already gone away", t, func() {
		p := &stubProvider{reply: func(ctx context.Context) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return `{"overallScore": 8, "strengths": ["steady"], "improvements": ["delegation"], "developmentPlan": "Lead the next migration."}`, nil
		}}
		f := newFixture(p, llm.Config{Timeout: time.Second})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("When analyzing one subject", func() {
			a, err := f.svc.AnalyzeOne(cancelled, model.KindEmployee, "E1", model.Parameters{})

			Convey("Then the model call still completes and no error fallback is stored", func() {
				So(err, ShouldBeNil)
				So(a.Payload.Source, ShouldEqual, model.SourceLiveModel)
				So(a.Metadata.Succeeded, ShouldBeTrue)
				So(f.store.Stats(ctx).BySource[model.SourceErrorFallback], ShouldEqual, 0)
			})
		})

		Convey("When analyzing a batch", func() {
			res, err := f.svc.AnalyzeBatch(cancelled, model.KindEmployee, []string{"E1", "E2"}, model.Parameters{})

			Convey("Then every item is a live analysis", func() {
				So(err, ShouldBeNil)
				So(res.Summary.Succeeded, ShouldEqual, 2)
				for _, item := range res.Successful {
					So(item.Payload.Source, ShouldEqual, model.SourceLiveModel)
				}
				So(f.store.Stats(ctx).BySource[model.SourceErrorFallback], ShouldEqual, 0)
			})
		})
	})

	Convey("Given a provider that never answers in time", t, func() {
		p := &stubProvider{reply: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		f := newFixture(p, llm.Config{Timeout: 20 * time.Millisecond})

		Convey("When analyzing", func() {
			a, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E2", model.Parameters{})

			Convey("Then the caller still gets an error-fallback analysis", func() {
				So(err, ShouldBeNil)
				So(a.Payload.Source, ShouldEqual, model.SourceErrorFallback)
				So(a.Metadata.Succeeded, ShouldBeFalse)
				So(a.Metadata.Provider, ShouldEqual, "stub")
				assertWellFormed(a.Payload)
			})
		})
	})

	Convey("Given a provider replying with out-of-range fields", t, func() {
		p := &stubProvider{reply: func(context.Context) (string, error) {
			return "Here you go:\n```json\n{\"overallScore\": 15, \"strengths\": \"not-an-array\"}\n```", nil
		}}
		f := newFixture(p, llm.Config{Model: "stub-1"})

		Convey("When analyzing", func() {
			a, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E1", model.Parameters{})

			Convey("Then the payload is corrected and marked live", func() {
				So(err, ShouldBeNil)
				So(a.Payload.Source, ShouldEqual, model.SourceLiveModel)
				So(a.Payload.OverallScore, ShouldEqual, 10)
				So(a.Payload.Strengths, ShouldHaveLength, 1)
				So(a.Metadata.Model, ShouldEqual, "stub-1")
				assertWellFormed(a.Payload)
			})
		})
	})

	Convey("Given a provider replying with prose only", t, func() {
		p := &stubProvider{reply: func(context.Context) (string, error) {
			return "I cannot produce JSON today.", nil
		}}
		f := newFixture(p, llm.Config{})

		Convey("Then the analysis is a parsed fallback", func() {
			a, err := f.svc.AnalyzeOne(ctx, model.KindTeam, "T2", model.Parameters{})
			So(err, ShouldBeNil)
			So(a.Payload.Source, ShouldEqual, model.SourceParsedFallback)
			So(a.Payload.Narrative, ShouldContainSubstring, "cannot produce JSON")
			assertWellFormed(a.Payload)
		})
	})
}

func TestService_AnalyzeBatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a batch with one valid and one unknown id", t, func() {
		f := newFixture(nil, llm.Config{})

		res, err := f.svc.AnalyzeBatch(ctx, model.KindEmployee, []string{"E1", "BAD_ID"}, model.Parameters{})

		Convey("Then the summary counts both outcomes", func() {
			So(err, ShouldBeNil)
			So(res.Summary, ShouldResemble, service.BatchSummary{Total: 2, Succeeded: 1, Failed: 1})
			So(res.Successful[0].Subject.ID(), ShouldEqual, "E1")
			So(res.Failed[0].ID, ShouldEqual, "BAD_ID")
			So(res.Failed[0].Code, ShouldEqual, service.CodeNotFound)
			So(res.Failed[0].Error, ShouldContainSubstring, "not found")
		})
	})

	Convey("Given a concurrent batch", t, func() {
		f := newFixture(nil, llm.Config{}, service.WithBatchConcurrency(4))
		ids := []string{"E4", "nope-1", "E2", "E1", "nope-2", "E3"}

		res, err := f.svc.AnalyzeBatch(ctx, model.KindEmployee, ids, model.Parameters{})

		Convey("Then results keep input order", func() {
			So(err, ShouldBeNil)
			So(res.Summary.Succeeded, ShouldEqual, 4)
			So(res.Summary.Failed, ShouldEqual, 2)
			var got []string
			for _, a := range res.Successful {
				got = append(got, a.Subject.ID())
			}
			So(got, ShouldResemble, []string{"E4", "E2", "E1", "E3"})
			So(res.Failed[0].ID, ShouldEqual, "nope-1")
			So(res.Failed[1].ID, ShouldEqual, "nope-2")
			So(f.store.Count(ctx), ShouldEqual, 4)
		})
	})

	Convey("Given invalid batch sizes", t, func() {
		f := newFixture(nil, llm.Config{}, service.WithMaxBatchSize(3))

		_, emptyErr := f.svc.AnalyzeBatch(ctx, model.KindEmployee, nil, model.Parameters{})
		ids := make([]string, 4)
		for i := range ids {
			ids[i] = fmt.Sprintf("E%d", i+1)
		}
		_, bigErr := f.svc.AnalyzeBatch(ctx, model.KindEmployee, ids, model.Parameters{})

		Convey("Then both are rejected", func() {
			So(errors.Is(emptyErr, service.ErrInvalidRequest), ShouldBeTrue)
			So(errors.Is(bigErr, service.ErrInvalidRequest), ShouldBeTrue)
			So(f.store.Count(ctx), ShouldEqual, 0)
		})
	})
}

func TestService_Compare(t *testing.T) {
	ctx := context.Background()

	Convey("Given T1 analyzed and T2 never analyzed", t, func() {
		f := newFixture(nil, llm.Config{})
		a, err := f.svc.AnalyzeOne(ctx, model.KindTeam, "T1", model.Parameters{})
		So(err, ShouldBeNil)

		res, err := f.svc.Compare(ctx, model.KindTeam, []string{"T1", "T2", "T404"})

		Convey("Then T2 is listed without a payload", func() {
			So(err, ShouldBeNil)
			So(res.Comparisons, ShouldHaveLength, 2)
			So(res.Comparisons[0].Payload, ShouldNotBeNil)
			So(res.Comparisons[0].Payload.OverallScore, ShouldEqual, a.Payload.OverallScore)
			So(res.Comparisons[1].Subject.ID(), ShouldEqual, "T2")
			So(res.Comparisons[1].Payload, ShouldBeNil)
			So(res.Errors, ShouldHaveLength, 1)
			So(res.Errors[0].Code, ShouldEqual, service.CodeNotFound)

			So(res.Summary.Total, ShouldEqual, 3)
			So(res.Summary.Compared, ShouldEqual, 2)
			So(res.Summary.Analyzed, ShouldEqual, 1)
			So(res.Summary.NotAnalyzed, ShouldEqual, 1)
			So(res.Summary.Failed, ShouldEqual, 1)
			So(res.Summary.TopSubjectID, ShouldEqual, "T1")
			So(*res.Summary.AverageOverallScore, ShouldAlmostEqual, a.Payload.OverallScore, 0.01)
		})

		Convey("Then comparing never appends records", func() {
			So(f.store.Count(ctx), ShouldEqual, 1)
		})
	})

	Convey("Given nothing analyzed", t, func() {
		f := newFixture(nil, llm.Config{})
		res, err := f.svc.Compare(ctx, model.KindTeam, []string{"T1", "T2"})

		Convey("Then there is no average or top subject", func() {
			So(err, ShouldBeNil)
			So(res.Summary.AverageOverallScore, ShouldBeNil)
			So(res.Summary.TopSubjectID, ShouldBeBlank)
		})
	})
}

func TestService_Subjects(t *testing.T) {
	ctx := context.Background()

	Convey("Given the seeded service", t, func() {
		f := newFixture(nil, llm.Config{}, service.WithMaxHistoryLimit(2))

		Convey("When a subject is stored and analyzed", func() {
			emp := model.EmployeeSubject(model.Employee{ID: "E9", Name: "Noor", Role: "Engineer"})
			So(f.svc.PutSubject(ctx, emp), ShouldBeNil)
			for i := 0; i < 3; i++ {
				_, err := f.svc.AnalyzeOne(ctx, model.KindEmployee, "E9", model.Parameters{})
				So(err, ShouldBeNil)
			}

			Convey("Then detail carries the latest record", func() {
				d, err := f.svc.GetSubject(ctx, model.KindEmployee, "E9")
				So(err, ShouldBeNil)
				So(d.Latest, ShouldNotBeNil)
				So(d.Subject.Name(), ShouldEqual, "Noor")
			})

			Convey("Then history is capped by the maximum limit", func() {
				hist, err := f.svc.History(ctx, model.KindEmployee, "E9", 50)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 2)
				So(f.svc.HistoryLimit(50), ShouldEqual, 2)
				So(f.svc.HistoryLimit(1), ShouldEqual, 1)
			})

			Convey("Then stats and health reflect the store", func() {
				st := f.svc.Stats(ctx)
				So(st.Total, ShouldEqual, 3)
				So(st.ByKind[model.KindEmployee], ShouldEqual, 3)
				So(st.Provider, ShouldEqual, "mock")
				So(st.LiveModel, ShouldBeFalse)
				h := f.svc.Health(ctx)
				So(h.Status, ShouldEqual, "ok")
				So(h.Records, ShouldEqual, 3)
				So(h.Subjects[model.KindEmployee], ShouldEqual, len(f.svc.ListSubjects(ctx, model.KindEmployee)))
			})
		})

		Convey("When reading an unknown subject", func() {
			_, detailErr := f.svc.GetSubject(ctx, model.KindTeam, "T404")
			_, histErr := f.svc.History(ctx, model.KindTeam, "T404", 5)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(detailErr, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(histErr, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
