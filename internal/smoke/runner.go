package smoke

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
)

const missingID = "smoke-missing-subject"

// Run executes a complete smoke pass against cfg.BaseURL.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Report, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	c := newClient(cfg.BaseURL, cfg.Timeout, log, cfg.Verbose)
	report := Report{StartTime: time.Now(), BySource: map[model.Source]int{}}

	log.Info(ctx, "starting smoke run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
	)

	if err := checkHealth(ctx, c, &report); err != nil {
		return report, fmt.Errorf("service health check failed: %w", err)
	}
	if err := checkBadKind(ctx, c, &report); err != nil {
		return report, err
	}

	for _, kind := range cfg.Kinds {
		ids, err := discover(ctx, c, kind)
		if err != nil {
			return report, fmt.Errorf("subject discovery failed: %w", err)
		}
		if len(ids) == 0 {
			log.Warn(ctx, "no subjects to exercise", logger.String("kind", string(kind)))
			continue
		}
		report.Subjects += len(ids)

		if err := analyzeAll(ctx, c, cfg, kind, ids, &report); err != nil {
			return report, fmt.Errorf("analysis failed: %w", err)
		}
		if err := verifyHistory(ctx, c, kind, ids, cfg.Rounds, &report); err != nil {
			return report, fmt.Errorf("history verification failed: %w", err)
		}
		if err := verifyBatch(ctx, c, kind, ids[0], &report); err != nil {
			return report, fmt.Errorf("batch verification failed: %w", err)
		}
		if err := verifyCompare(ctx, c, kind, ids, &report); err != nil {
			return report, fmt.Errorf("compare verification failed: %w", err)
		}
	}

	if err := verifyStats(ctx, c, &report); err != nil {
		return report, fmt.Errorf("stats verification failed: %w", err)
	}

	report.Duration = time.Since(report.StartTime)
	log.Info(ctx, "smoke run passed",
		logger.Int("subjects", report.Subjects),
		logger.Int("analyses", report.Analyses),
		logger.Int("checks", len(report.Checks)),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

func checkHealth(ctx context.Context, c *client, r *Report) error {
	doc, err := c.expect(ctx, http.StatusOK, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if doc.Get("status").String() != "ok" {
		return fmt.Errorf("unexpected health status %q", doc.Get("status").String())
	}
	r.passed("health")
	return nil
}

func checkBadKind(ctx context.Context, c *client, r *Report) error {
	if _, err := c.expect(ctx, http.StatusBadRequest, http.MethodGet, "/subjects/unknown-kind", nil); err != nil {
		return err
	}
	r.passed("unknown kind rejected")
	return nil
}

func discover(ctx context.Context, c *client, kind model.Kind) ([]string, error) {
	doc, err := c.expect(ctx, http.StatusOK, http.MethodGet, "/subjects/"+string(kind), nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range doc.Get("subjects.#." + string(kind) + ".id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// analyzeAll runs cfg.Rounds analyses per id with bounded concurrency.
func analyzeAll(ctx context.Context, c *client, cfg Config, kind model.Kind, ids []string, r *Report) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for round := 0; round < cfg.Rounds; round++ {
		for _, id := range ids {
			g.Go(func() error {
				params := model.Parameters{Period: fmt.Sprintf("smoke-%d", round)}
				doc, err := c.expect(gctx, http.StatusOK, http.MethodPost, "/subjects/"+string(kind)+"/"+id+"/analyze", params)
				if err == nil {
					err = verifyPayload(kind, doc.Get("analysis"))
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					r.Failed++
					return fmt.Errorf("%s %s: %w", kind, id, err)
				}
				r.Analyses++
				r.BySource[model.Source(doc.Get("analysis.source").String())]++
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.passed(fmt.Sprintf("%s payloads well formed", kind))
	return nil
}

func verifyHistory(ctx context.Context, c *client, kind model.Kind, ids []string, rounds int, r *Report) error {
	for _, id := range ids {
		path := fmt.Sprintf("/subjects/%s/%s/history?limit=%d", kind, id, rounds)
		doc, err := c.expect(ctx, http.StatusOK, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if err := verifyDescending(doc.Get("records"), rounds); err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
	}
	r.passed(fmt.Sprintf("%s history ordered", kind))
	return nil
}

func verifyBatch(ctx context.Context, c *client, kind model.Kind, id string, r *Report) error {
	body := map[string]any{"ids": []string{id, missingID}}
	doc, err := c.expect(ctx, http.StatusOK, http.MethodPost, "/subjects/"+string(kind)+"/batch-analyze", body)
	if err != nil {
		return err
	}
	summary := doc.Get("summary")
	if summary.Get("total").Int() != 2 || summary.Get("succeeded").Int() != 1 || summary.Get("failed").Int() != 1 {
		return fmt.Errorf("unexpected batch summary %s", summary.Raw)
	}
	if doc.Get("failed.0.id").String() != missingID || doc.Get("failed.0.code").String() != "not_found" {
		return fmt.Errorf("unexpected batch failure %s", doc.Get("failed.0").Raw)
	}
	r.Analyses++
	r.passed(fmt.Sprintf("%s batch isolates failures", kind))
	return nil
}

func verifyCompare(ctx context.Context, c *client, kind model.Kind, ids []string, r *Report) error {
	body := map[string]any{"ids": append(append([]string{}, ids...), missingID)}
	doc, err := c.expect(ctx, http.StatusOK, http.MethodPost, "/subjects/"+string(kind)+"/compare", body)
	if err != nil {
		return err
	}
	if got := int(doc.Get("comparisons.#").Int()); got != len(ids) {
		return fmt.Errorf("compared %d subjects, want %d", got, len(ids))
	}
	if got := int(doc.Get("summary.analyzed").Int()); got != len(ids) {
		return fmt.Errorf("%d subjects analyzed, want %d", got, len(ids))
	}
	if doc.Get("errors.0.code").String() != "not_found" {
		return fmt.Errorf("missing subject not reported: %s", doc.Get("errors").Raw)
	}
	r.passed(fmt.Sprintf("%s compare", kind))
	return nil
}

func verifyStats(ctx context.Context, c *client, r *Report) error {
	doc, err := c.expect(ctx, http.StatusOK, http.MethodGet, "/stats", nil)
	if err != nil {
		return err
	}
	total, capacity := int(doc.Get("total").Int()), int(doc.Get("capacity").Int())
	if total > capacity {
		return fmt.Errorf("store holds %d records over capacity %d", total, capacity)
	}
	if want := min(r.Analyses, capacity); total < want {
		return fmt.Errorf("store holds %d records, want at least %d", total, want)
	}
	r.passed("stats")
	return nil
}

// verifyPayload checks score ranges and non-empty lists against the schema.
func verifyPayload(kind model.Kind, p gjson.Result) error {
	if !model.Source(p.Get("source").String()).Valid() {
		return fmt.Errorf("unknown source %q", p.Get("source").String())
	}
	schema := model.SchemaFor(kind)
	for _, field := range append([]string{model.FieldOverallScore}, schema.SecondaryScores...) {
		v := p.Get(field)
		if !v.Exists() || v.Float() < model.MinScore || v.Float() > model.MaxScore {
			return fmt.Errorf("%s out of range: %s", field, v.Raw)
		}
	}
	for _, field := range []string{schema.StrengthsField, schema.ConcernsField} {
		if p.Get(field+".#").Int() == 0 {
			return fmt.Errorf("%s is empty", field)
		}
	}
	if p.Get(schema.NarrativeField).String() == "" {
		return fmt.Errorf("%s is empty", schema.NarrativeField)
	}
	return nil
}

func verifyDescending(records gjson.Result, want int) error {
	list := records.Array()
	if len(list) != want {
		return fmt.Errorf("history returned %d records, want %d", len(list), want)
	}
	var prev time.Time
	for i, rec := range list {
		ts, err := time.Parse(time.RFC3339Nano, rec.Get("metadata.timestamp").String())
		if err != nil {
			return fmt.Errorf("record %d timestamp: %w", i, err)
		}
		if i > 0 && !ts.Before(prev) {
			return fmt.Errorf("record %d is not older than record %d", i, i-1)
		}
		prev = ts
	}
	return nil
}
