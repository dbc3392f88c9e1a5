package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/service"
)

// ProposalService is the business logic the feature handler needs.
// *service.ProposalService satisfies it; tests substitute a stub.
type ProposalService interface {
	Create(ctx context.Context, text, authorEmail string) (*model.Proposal, error)
	List(ctx context.Context, q service.ListQuery) (*model.ProposalPage, error)
	Upvote(ctx context.Context, id, email string) (*model.Proposal, error)
}

// FeatureHandler serves the /api/features endpoints.
type FeatureHandler struct {
	service ProposalService
	logger  *slog.Logger
}

func NewFeatureHandler(svc ProposalService, logger *slog.Logger) *FeatureHandler {
	return &FeatureHandler{service: svc, logger: logger}
}

// HandleList returns one page of proposals.
//
// HTTP: GET /api/features?page=1&limit=10&sortBy=createdAt&sortOrder=desc
//
// Absent parameters take their defaults. Present but invalid ones (page=0,
// limit=abc, sortBy=text) are rejected with 400 rather than corrected.
//
// RESPONSE FORMAT:
//
//	{
//	  "data": [{"id":"...","text":"...","authorEmail":"...","upvoteCount":0,"createdAt":"..."}],
//	  "meta": {"page":1,"limit":10,"total":25,"totalPages":3}
//	}
func (h *FeatureHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.service.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, page)
}

type createRequest struct {
	Text        string `json:"text"`
	AuthorEmail string `json:"authorEmail"`
}

// HandleCreate saves a new proposal.
//
// HTTP: POST /api/features
// REQUEST BODY: {"text": "Add dark mode to the dashboard", "authorEmail": "user@example.com"}
func (h *FeatureHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	proposal, err := h.service.Create(r.Context(), req.Text, req.AuthorEmail)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, proposal)
}

type upvoteRequest struct {
	Email string `json:"email"`
}

// HandleUpvote records one vote and returns the proposal with its new count.
//
// HTTP: POST /api/features/{id}/upvote
// REQUEST BODY: {"email": "voter@example.com"}
//
// 404 when the proposal does not exist, 409 when this email already voted.
func (h *FeatureHandler) HandleUpvote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req upvoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	proposal, err := h.service.Upvote(r.Context(), id, req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, proposal)
}

func parseListQuery(r *http.Request) (service.ListQuery, error) {
	q := service.DefaultListQuery()
	values := r.URL.Query()

	var err error
	if q.Page, err = intParam(values.Get("page"), "page", q.Page); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(values.Get("limit"), "limit", q.Limit); err != nil {
		return q, err
	}
	if v := values.Get("sortBy"); v != "" {
		q.SortBy = model.SortField(v)
	}
	if v := values.Get("sortOrder"); v != "" {
		q.SortOrder = model.SortOrder(v)
	}
	return q, nil
}

func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}
