package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/okian/talentlens/internal/adapters/repository"
	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

// Error codes reported per item in batch and comparison results.
const (
	CodeNotFound      = "not_found"
	CodeInternalError = "internal_error"
)

// Analysis is the result of analyzing one subject.
type Analysis struct {
	Subject  model.Subject  `json:"subject"`
	Payload  model.Payload  `json:"analysis"`
	Metadata model.Metadata `json:"metadata"`
	RecordID string         `json:"recordId"`
}

// ItemError describes why one id in a batch or comparison failed.
type ItemError struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchResult lists successes and failures in input order.
type BatchResult struct {
	Successful []Analysis   `json:"successful"`
	Failed     []ItemError  `json:"failed"`
	Summary    BatchSummary `json:"summary"`
}

// Comparison is one subject with its latest analysis. Payload and Metadata
// are nil when the subject has never been analyzed.
type Comparison struct {
	Subject  model.Subject   `json:"subject"`
	Payload  *model.Payload  `json:"analysis"`
	Metadata *model.Metadata `json:"metadata"`
}

// CompareSummary aggregates a comparison.
type CompareSummary struct {
	Total               int      `json:"total"`
	Compared            int      `json:"compared"`
	Analyzed            int      `json:"analyzed"`
	NotAnalyzed         int      `json:"notAnalyzed"`
	Failed              int      `json:"failed"`
	TopSubjectID        string   `json:"topSubjectId,omitempty"`
	AverageOverallScore *float64 `json:"averageOverallScore"`
}

// CompareResult is returned by Compare.
type CompareResult struct {
	Comparisons []Comparison   `json:"comparisons"`
	Errors      []ItemError    `json:"errors"`
	Summary     CompareSummary `json:"summary"`
}

// AnalyzeOne runs the pipeline for a single subject and appends a record.
// Provider and parse failures are absorbed into the payload source; only an
// unknown subject or a failed store write is returned as an error.
func (s *Service) AnalyzeOne(ctx context.Context, kind model.Kind, id string, params model.Parameters) (Analysis, error) {
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, s.newRequestID())
	}
	requestID := logger.RequestID(ctx)
	params = params.Normalized()

	subject, err := s.directory.Get(ctx, kind, id)
	if err != nil {
		return Analysis{}, err
	}
	merged := model.ApplyOverrides(subject, params.Overrides)

	p := s.compiler.Compile(merged, params)
	s.logger.Debug(ctx, "prompt compiled",
		logger.String("kind", string(kind)),
		logger.String("subjectId", id),
		logger.Int("userPromptBytes", len(p.User)),
	)

	// A started analysis runs to completion; only model_timeout_ms bounds the call.
	out := s.invoker.Invoke(context.WithoutCancel(ctx), merged, params, p)
	s.logger.Debug(ctx, "model invoked",
		logger.String("provider", out.Provider),
		logger.Int("attempts", out.Attempts),
		logger.Bool("fallback", out.Fallback != nil),
	)

	var payload model.Payload
	if out.Fallback != nil {
		payload = *out.Fallback
	} else {
		payload = s.interpreter.Interpret(ctx, kind, out.Reply)
	}
	s.logger.Debug(ctx, "reply interpreted",
		logger.String("source", string(payload.Source)),
		logger.Float64("overallScore", payload.OverallScore),
	)

	meta := model.NewMetadata(payload.Source, requestID, out.Provider, out.Model, params)
	rec, err := s.store.Append(context.WithoutCancel(ctx), kind, id, payload, meta)
	if err != nil {
		s.logger.Error(ctx, "failed to persist analysis",
			logger.String("kind", string(kind)),
			logger.String("subjectId", id),
			logger.Error(err),
		)
		return Analysis{}, fmt.Errorf("persist analysis: %w", err)
	}
	metrics.RecordAnalysis(string(kind), string(rec.Metadata.Source))
	s.logger.Info(ctx, "analysis recorded",
		logger.String("kind", string(kind)),
		logger.String("subjectId", id),
		logger.String("recordId", rec.ID),
		logger.String("source", string(rec.Metadata.Source)),
	)

	return Analysis{Subject: subject, Payload: rec.Payload, Metadata: rec.Metadata, RecordID: rec.ID}, nil
}

// AnalyzeBatch analyzes each id independently. A failing id never aborts
// the rest; results keep the input order.
func (s *Service) AnalyzeBatch(ctx context.Context, kind model.Kind, ids []string, params model.Parameters) (BatchResult, error) {
	if err := s.checkIDs(ids); err != nil {
		return BatchResult{}, err
	}

	type slot struct {
		analysis Analysis
		err      error
	}
	slots := make([]slot, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			a, err := s.AnalyzeOne(gctx, kind, id, params)
			slots[i] = slot{analysis: a, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{
		Successful: make([]Analysis, 0, len(ids)),
		Failed:     make([]ItemError, 0),
		Summary:    BatchSummary{Total: len(ids)},
	}
	for i, sl := range slots {
		if sl.err != nil {
			res.Failed = append(res.Failed, itemError(ids[i], sl.err))
			metrics.RecordBatchItem("failed")
			continue
		}
		res.Successful = append(res.Successful, sl.analysis)
		metrics.RecordBatchItem("succeeded")
	}
	res.Summary.Succeeded = len(res.Successful)
	res.Summary.Failed = len(res.Failed)

	s.logger.Info(ctx, "batch analyzed",
		logger.String("kind", string(kind)),
		logger.Int("total", res.Summary.Total),
		logger.Int("succeeded", res.Summary.Succeeded),
		logger.Int("failed", res.Summary.Failed),
	)
	return res, nil
}

// Compare collects the latest analysis of each subject without running
// any new analysis.
func (s *Service) Compare(ctx context.Context, kind model.Kind, ids []string) (CompareResult, error) {
	if err := s.checkIDs(ids); err != nil {
		return CompareResult{}, err
	}

	res := CompareResult{
		Comparisons: make([]Comparison, 0, len(ids)),
		Errors:      make([]ItemError, 0),
		Summary:     CompareSummary{Total: len(ids)},
	}
	var sum float64
	best := math.Inf(-1)
	for _, id := range ids {
		subject, err := s.directory.Get(ctx, kind, id)
		if err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		c := Comparison{Subject: subject}
		if rec, ok := s.store.Latest(ctx, kind, id); ok {
			payload, meta := rec.Payload, rec.Metadata
			c.Payload, c.Metadata = &payload, &meta
			res.Summary.Analyzed++
			sum += payload.OverallScore
			if payload.OverallScore > best {
				best = payload.OverallScore
				res.Summary.TopSubjectID = id
			}
		} else {
			res.Summary.NotAnalyzed++
		}
		res.Comparisons = append(res.Comparisons, c)
	}
	res.Summary.Compared = len(res.Comparisons)
	res.Summary.Failed = len(res.Errors)
	if res.Summary.Analyzed > 0 {
		avg := math.Round(sum/float64(res.Summary.Analyzed)*100) / 100
		res.Summary.AverageOverallScore = &avg
	}
	return res, nil
}

func itemError(id string, err error) ItemError {
	code := CodeInternalError
	if errors.Is(err, repository.ErrNotFound) {
		code = CodeNotFound
	}
	return ItemError{ID: id, Code: code, Error: err.Error()}
}
