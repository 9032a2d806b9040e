package api

import (
	"fmt"
	"net/http"

	"github.com/okian/talentlens/internal/domain/model"
)

// SubjectsHandler serves the subject directory.
type SubjectsHandler struct {
	deps Dependencies
	w    responder
}

type subjectList struct {
	Kind     model.Kind      `json:"kind"`
	Subjects []model.Subject `json:"subjects"`
}

// HandleList handles GET /subjects/{kind}.
func (h *SubjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_subjects"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subjectList{Kind: kind, Subjects: h.deps.ListSubjects(r.Context(), kind)})
}

// HandleGet handles GET /subjects/{kind}/{id}.
func (h *SubjectsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_subject"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	detail, err := h.deps.GetSubject(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandlePut handles PUT /subjects/{kind}/{id}. The body is an employee or
// team document; its id, when present, must match the path.
func (h *SubjectsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_subject"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	id := r.PathValue("id")

	var subject model.Subject
	switch kind {
	case model.KindEmployee:
		var e model.Employee
		if err := decodeBody(w, r, op, &e); err != nil {
			h.w.error(w, r, err)
			return
		}
		if e.ID == "" {
			e.ID = id
		}
		subject = model.EmployeeSubject(e)
	case model.KindTeam:
		var t model.Team
		if err := decodeBody(w, r, op, &t); err != nil {
			h.w.error(w, r, err)
			return
		}
		if t.ID == "" {
			t.ID = id
		}
		subject = model.TeamSubject(t)
	}
	if subject.ID() != id {
		h.w.error(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("body id %q does not match path id %q", subject.ID(), id)))
		return
	}

	if err := h.deps.PutSubject(r.Context(), subject); err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	detail, err := h.deps.GetSubject(r.Context(), kind, id)
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
