package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tidwall/gjson"

	"github.com/okian/talentlens/internal/adapters/http/api"
	"github.com/okian/talentlens/internal/adapters/llm"
	"github.com/okian/talentlens/internal/adapters/repository"
	service "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/domain/interpret"
	"github.com/okian/talentlens/internal/domain/prompt"
	"github.com/okian/talentlens/internal/domain/scoring"
)

type harness struct {
	handler http.Handler
	store   *repository.MemoryStore
}

func newHarness() harness {
	seed, err := repository.LoadSeed("")
	So(err, ShouldBeNil)
	dir, err := repository.NewDirectory(seed.Subjects()...)
	So(err, ShouldBeNil)
	inv, err := llm.NewInvoker(llm.Config{}, scoring.NewGenerator())
	So(err, ShouldBeNil)
	store := repository.NewMemoryStore()
	svc := service.New(dir, store, prompt.NewCompiler(), inv, interpret.New(),
		service.WithMaxBatchSize(5),
		service.WithMaxHistoryLimit(3),
	)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return harness{handler: api.RequestIDMiddleware(mux), store: store}
}

func (h harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func field(w *httptest.ResponseRecorder, path string) gjson.Result {
	return gjson.Get(w.Body.String(), path)
}

func TestServer_Subjects(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newHarness()

		Convey("When listing employees", func() {
			w := h.do("GET", "/subjects/employee", "")

			Convey("Then the seeded subjects are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "kind").String(), ShouldEqual, "employee")
				So(field(w, "subjects.0.employee.id").String(), ShouldEqual, "E1")
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeBlank)
			})
		})

		Convey("When the kind is unknown", func() {
			w := h.do("GET", "/subjects/robot", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(field(w, "code").String(), ShouldEqual, "bad_request")
				So(field(w, "message").String(), ShouldContainSubstring, "unknown subject kind")
			})
		})

		Convey("When fetching an unknown subject", func() {
			w := h.do("GET", "/subjects/team/T404", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(field(w, "code").String(), ShouldEqual, "not_found")
			})
		})

		Convey("When putting a team", func() {
			w := h.do("PUT", "/subjects/team/T7", `{"name":"Platform","department":"Engineering","memberRefs":[{"subjectRef":"E1","role":"lead"}]}`)

			Convey("Then it can be read back without a latest record", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "subject.team.id").String(), ShouldEqual, "T7")
				So(field(w, "latest").Type, ShouldEqual, gjson.Null)
				again := h.do("GET", "/subjects/team/T7", "")
				So(again.Code, ShouldEqual, http.StatusOK)
				So(field(again, "subject.team.name").String(), ShouldEqual, "Platform")
			})
		})

		Convey("When putting a subject whose body id differs from the path", func() {
			w := h.do("PUT", "/subjects/employee/E8", `{"id":"E9","name":"Mismatch"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When putting malformed JSON", func() {
			w := h.do("PUT", "/subjects/employee/E8", `{"name":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_Analysis(t *testing.T) {
	Convey("Given a registered API server without a model credential", t, func() {
		h := newHarness()

		Convey("When analyzing E1 with no body", func() {
			w := h.do("POST", "/subjects/employee/E1/analyze", "")

			Convey("Then a mock analysis is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "analysis.source").String(), ShouldEqual, "mock")
				So(field(w, "analysis.overallScore").Float(), ShouldBeBetweenOrEqual, 1, 10)
				So(field(w, "analysis.strengths.#").Int(), ShouldBeGreaterThan, 0)
				So(field(w, "metadata.succeeded").Bool(), ShouldBeTrue)
				So(field(w, "metadata.requestId").String(), ShouldEqual, w.Header().Get(api.RequestIDHeader))
				So(field(w, "subject.employee.id").String(), ShouldEqual, "E1")
			})

			Convey("And the subject detail carries it as latest", func() {
				d := h.do("GET", "/subjects/employee/E1", "")
				So(field(d, "latest.id").String(), ShouldEqual, field(w, "recordId").String())
			})
		})

		Convey("When analyzing with parameters", func() {
			w := h.do("POST", "/subjects/team/T1/analyze", `{"period":"2026-Q3","focusAreas":["delivery"]}`)

			Convey("Then the parameters are recorded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "metadata.parameters.period").String(), ShouldEqual, "2026-Q3")
				So(field(w, "analysis.risks.#").Int(), ShouldBeGreaterThan, 0)
				So(field(w, "analysis.actionPlan").String(), ShouldNotBeBlank)
			})
		})

		Convey("When analyzing an unknown subject", func() {
			w := h.do("POST", "/subjects/employee/BAD_ID/analyze", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the record store is closed", func() {
			So(h.store.Close(), ShouldBeNil)
			w := h.do("POST", "/subjects/employee/E1/analyze", "")

			Convey("Then the failure is an internal error without detail", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(field(w, "code").String(), ShouldEqual, "internal_error")
				So(field(w, "message").String(), ShouldEqual, "internal error")
			})
		})

		Convey("When reading history", func() {
			for i := 0; i < 4; i++ {
				So(h.do("POST", "/subjects/employee/E2/analyze", "").Code, ShouldEqual, http.StatusOK)
			}

			Convey("Then the limit defaults and is capped", func() {
				w := h.do("GET", "/subjects/employee/E2/history", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "records.#").Int(), ShouldEqual, 3)
				So(field(w, "limit").Int(), ShouldEqual, 3)

				w = h.do("GET", "/subjects/employee/E2/history?limit=50", "")
				So(field(w, "records.#").Int(), ShouldEqual, 3)
				So(field(w, "limit").Int(), ShouldEqual, 3)

				w = h.do("GET", "/subjects/employee/E2/history?limit=2", "")
				So(field(w, "records.#").Int(), ShouldEqual, 2)
				So(field(w, "limit").Int(), ShouldEqual, 2)
				newer, err := time.Parse(time.RFC3339Nano, field(w, "records.0.metadata.timestamp").String())
				So(err, ShouldBeNil)
				older, err := time.Parse(time.RFC3339Nano, field(w, "records.1.metadata.timestamp").String())
				So(err, ShouldBeNil)
				So(newer.After(older), ShouldBeTrue)

				w = h.do("GET", "/subjects/employee/E2/history?limit=0", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "records.#").Int(), ShouldEqual, 0)
			})

			Convey("Then a bad limit is rejected", func() {
				So(h.do("GET", "/subjects/employee/E2/history?limit=-1", "").Code, ShouldEqual, http.StatusBadRequest)
				So(h.do("GET", "/subjects/employee/E2/history?limit=ten", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestServer_BatchAndCompare(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newHarness()

		Convey("When batch analyzing a mix of ids", func() {
			w := h.do("POST", "/subjects/employee/batch-analyze", `{"ids":["E1","BAD_ID"],"parameters":{}}`)

			Convey("Then the summary reports one of each", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "summary.total").Int(), ShouldEqual, 2)
				So(field(w, "summary.succeeded").Int(), ShouldEqual, 1)
				So(field(w, "summary.failed").Int(), ShouldEqual, 1)
				So(field(w, "failed.0.id").String(), ShouldEqual, "BAD_ID")
				So(field(w, "failed.0.code").String(), ShouldEqual, "not_found")
			})
		})

		Convey("When the batch is empty or too large", func() {
			So(h.do("POST", "/subjects/employee/batch-analyze", `{"ids":[]}`).Code, ShouldEqual, http.StatusBadRequest)
			So(h.do("POST", "/subjects/employee/batch-analyze", `{"ids":["a","b","c","d","e","f"]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When comparing teams where only T1 was analyzed", func() {
			So(h.do("POST", "/subjects/team/T1/analyze", "").Code, ShouldEqual, http.StatusOK)
			w := h.do("POST", "/subjects/team/compare", `{"ids":["T1","T2"]}`)

			Convey("Then T2 has a null analysis", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(field(w, "comparisons.#").Int(), ShouldEqual, 2)
				So(field(w, "comparisons.1.subject.team.id").String(), ShouldEqual, "T2")
				So(field(w, "comparisons.1.analysis").Type, ShouldEqual, gjson.Null)
				So(field(w, "summary.analyzed").Int(), ShouldEqual, 1)
				So(field(w, "summary.notAnalyzed").Int(), ShouldEqual, 1)
				So(field(w, "summary.topSubjectId").String(), ShouldEqual, "T1")
				So(field(w, "errors.#").Int(), ShouldEqual, 0)
			})
		})
	})
}

func TestServer_Operational(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newHarness()
		So(h.do("POST", "/subjects/employee/E3/analyze", "").Code, ShouldEqual, http.StatusOK)

		Convey("Then health reports ok", func() {
			w := h.do("GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(field(w, "status").String(), ShouldEqual, "ok")
			So(field(w, "records").Int(), ShouldEqual, 1)
		})

		Convey("Then stats count the analysis", func() {
			w := h.do("GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(field(w, "total").Int(), ShouldEqual, 1)
			So(field(w, "byKind.employee").Int(), ShouldEqual, 1)
			So(field(w, "bySource.mock").Int(), ShouldEqual, 1)
			So(field(w, "provider").String(), ShouldEqual, "mock")
		})

		Convey("Then metrics are exposed", func() {
			w := h.do("GET", "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "talentlens_analysis_analyses_total")
		})

		Convey("Then an inbound request id is echoed", func() {
			req := httptest.NewRequest("GET", "/healthz", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "trace-abc")
			w := httptest.NewRecorder()
			h.handler.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "trace-abc")
		})

		Convey("Then unknown routes and methods are rejected", func() {
			So(h.do("GET", "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(h.do("DELETE", "/subjects/employee/E1", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
