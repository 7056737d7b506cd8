package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_fashionary/internal/bulk"
	"github.com/fjod/go_fashionary/internal/courier"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/journal"
	"github.com/fjod/go_fashionary/internal/scan"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type Sessions interface {
	Create(operator string) *scan.Session
	Get(id string) (*scan.Session, error)
	Delete(id string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, s bulk.Session, action bulk.Action, operator, sessionID string) (*bulk.Result, error)
}

type ScanHandler struct {
	sessions   Sessions
	dispatcher Dispatcher
	journal    journal.Journal
	timeout    time.Duration
	maxBody    int64
	log        *logrus.Entry
}

func NewScanHandler(sessions Sessions, d Dispatcher, j journal.Journal, timeout time.Duration, maxBody int64, log *logrus.Entry) *ScanHandler {
	return &ScanHandler{
		sessions:   sessions,
		dispatcher: d,
		journal:    j,
		timeout:    timeout,
		maxBody:    maxBody,
		log:        log.WithField("component", "scan_handler"),
	}
}

type ScannedItemDTO struct {
	ID            string `json:"id"`
	CurrentStatus string `json:"current_status"`
	StatusLabel   string `json:"status_label"`
	ScannedAt     string `json:"scanned_at"`
}

type SessionResponseDTO struct {
	ID        string           `json:"id"`
	Operator  string           `json:"operator"`
	CreatedAt string           `json:"created_at"`
	Items     []ScannedItemDTO `json:"items"`
	Signal    scan.Signal      `json:"signal"`
	CanUndo   bool             `json:"can_undo"`
	CanRedo   bool             `json:"can_redo"`
	Cursor    int              `json:"cursor"`
	Entries   int              `json:"entries"`
}

type ScanRequestDTO struct {
	Code string `json:"code"`
}

type BulkRequestDTO struct {
	Action string `json:"action"`
	Status string `json:"status,omitempty"`
}

type ArtifactDTO struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type BulkResponseDTO struct {
	DispatchID   string                `json:"dispatch_id"`
	Action       string                `json:"action"`
	Status       string                `json:"status,omitempty"`
	OrderIDs     []string              `json:"order_ids"`
	Artifact     *ArtifactDTO          `json:"artifact,omitempty"`
	Consignments []courier.Consignment `json:"consignments,omitempty"`
	CompletedAt  string                `json:"completed_at"`
	Session      SessionResponseDTO    `json:"session"`
}

func convertItems(items domain.Snapshot) []ScannedItemDTO {
	dtos := make([]ScannedItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, ScannedItemDTO{
			ID:            it.ID,
			CurrentStatus: string(it.CurrentStatus),
			StatusLabel:   it.CurrentStatus.Label(),
			ScannedAt:     it.ScannedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return dtos
}

func convertSession(s *scan.Session, v scan.View) SessionResponseDTO {
	return SessionResponseDTO{
		ID:        s.ID,
		Operator:  s.Operator,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Items:     convertItems(v.Items),
		Signal:    v.Signal,
		CanUndo:   v.CanUndo,
		CanRedo:   v.CanRedo,
		Cursor:    v.Cursor,
		Entries:   v.Entries,
	}
}

func (h *ScanHandler) session(w http.ResponseWriter, r *http.Request) (*scan.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return nil, false
	}
	return s, true
}

// POST /api/v1/scan/sessions
func (h *ScanHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create(getOperator(r.Context()))
	respondJSON(w, http.StatusCreated, convertSession(s, s.View()))
}

// GET /api/v1/scan/sessions/{session_id}
func (h *ScanHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, convertSession(s, s.View()))
}

// DELETE /api/v1/scan/sessions/{session_id}
func (h *ScanHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "session_id")); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/scan/sessions/{session_id}/scans
//
// Duplicates and rejections are normal outcomes for the scan screen, so they
// come back with the session body and the signal explaining them.
func (h *ScanHandler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ScanRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sig, err := s.SubmitScan(ctx, req.Code)
	status := http.StatusCreated
	switch {
	case errors.Is(err, scan.ErrBlankScan):
		status = http.StatusOK
	case errors.Is(err, scan.ErrDuplicateScan):
		status = http.StatusConflict
	case errors.Is(err, scan.ErrValidationRejected):
		status = http.StatusUnprocessableEntity
	case err != nil:
		handleError(w, r, h.log, err)
		return
	}

	view := s.View()
	// the signal may already have been reset by a faster scan
	view.Signal = sig
	respondJSON(w, status, convertSession(s, view))
}

// DELETE /api/v1/scan/sessions/{session_id}/items/{order_id}
func (h *ScanHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}
	respondJSON(w, http.StatusOK, convertSession(s, s.RemoveItem(orderID)))
}

// POST /api/v1/scan/sessions/{session_id}/undo
func (h *ScanHandler) Undo(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, convertSession(s, s.Undo()))
	}
}

// POST /api/v1/scan/sessions/{session_id}/redo
func (h *ScanHandler) Redo(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, convertSession(s, s.Redo()))
	}
}

// POST /api/v1/scan/sessions/{session_id}/clear
func (h *ScanHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, convertSession(s, s.Clear()))
	}
}

// POST /api/v1/scan/sessions/{session_id}/bulk
//
// With ?download=1 an action that produces a file answers with the file
// itself instead of JSON.
func (h *ScanHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req BulkRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	action, err := bulk.ParseAction(req.Action, req.Status)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.dispatcher.Dispatch(ctx, s.Controller, action, getOperator(r.Context()), s.ID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	if res.Artifact != nil && r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Type", res.Artifact.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Artifact.Name))
		w.Header().Set("X-Dispatch-ID", res.DispatchID)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Artifact.Data); err != nil {
			h.log.WithError(err).Warn("failed to write artifact")
		}
		return
	}

	resp := BulkResponseDTO{
		DispatchID:   res.DispatchID,
		Action:       string(res.Action),
		Status:       string(res.Status),
		OrderIDs:     res.OrderIDs,
		Consignments: res.Consignments,
		CompletedAt:  res.CompletedAt.UTC().Format(time.RFC3339),
		Session:      convertSession(s, s.View()),
	}
	if res.Artifact != nil {
		resp.Artifact = &ArtifactDTO{
			Name:        res.Artifact.Name,
			ContentType: res.Artifact.ContentType,
			Content:     res.Artifact.Data,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /api/v1/dispatches
func (h *ScanHandler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.journal.List(ctx, limit)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// GET /api/v1/dispatches/{dispatch_id}
func (h *ScanHandler) GetDispatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, err := h.journal.Get(ctx, chi.URLParam(r, "dispatch_id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}
