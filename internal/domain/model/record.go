package model

import (
	"encoding/json"
	"time"
)

// Metadata is the provenance attached to every stored record.
type Metadata struct {
	Source     Source     `json:"source"`
	Succeeded  bool       `json:"succeeded"`
	Timestamp  time.Time  `json:"timestamp"`
	RequestID  string     `json:"requestId"`
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	Parameters Parameters `json:"parameters"`
}

// NewMetadata derives the succeeded flag from the source: only an
// error-fallback counts as a failed analysis.
func NewMetadata(source Source, requestID, provider, modelID string, params Parameters) Metadata {
	return Metadata{
		Source:     source,
		Succeeded:  source != SourceErrorFallback,
		RequestID:  requestID,
		Provider:   provider,
		Model:      modelID,
		Parameters: params,
	}
}

// Record is one immutable entry in the analysis log.
type Record struct {
	ID          string   `json:"id"`
	SubjectKind Kind     `json:"subjectKind"`
	SubjectID   string   `json:"subjectId"`
	Payload     Payload  `json:"payload"`
	Metadata    Metadata `json:"metadata"`
}

// MarshalJSON keeps the payload field order from Payload.MarshalJSON.
func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := r.Payload.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID          string          `json:"id"`
		SubjectKind Kind            `json:"subjectKind"`
		SubjectID   string          `json:"subjectId"`
		Payload     json.RawMessage `json:"payload"`
		Metadata    Metadata        `json:"metadata"`
	}{r.ID, r.SubjectKind, r.SubjectID, payload, r.Metadata})
}

// Stats summarises the record log.
type Stats struct {
	Total     int            `json:"total"`
	ThisMonth int            `json:"thisMonth"`
	Last7Days int            `json:"last7Days"`
	ByKind    map[Kind]int   `json:"byKind"`
	BySource  map[Source]int `json:"bySource"`
	Capacity  int            `json:"capacity"`
}

// Aggregate computes Stats over recs relative to now.
func Aggregate(recs []Record, capacity int, now time.Time) Stats {
	st := Stats{
		Total:    len(recs),
		ByKind:   map[Kind]int{KindEmployee: 0, KindTeam: 0},
		BySource: make(map[Source]int, len(Sources)),
		Capacity: capacity,
	}
	for _, s := range Sources {
		st.BySource[s] = 0
	}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	for _, r := range recs {
		ts := r.Metadata.Timestamp
		if ts.Year() == now.Year() && ts.Month() == now.Month() {
			st.ThisMonth++
		}
		if ts.After(weekAgo) {
			st.Last7Days++
		}
		st.ByKind[r.SubjectKind]++
		st.BySource[r.Metadata.Source]++
	}
	return st
}
