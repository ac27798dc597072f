// Package server exposes the orchestrator to the UI layer over HTTP. UI
// actions are pure state-transition triggers; no workflow logic lives here.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/docstore"
	"github.com/joseph-ayodele/contracts-desk/internal/export"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/feedback"
	"github.com/joseph-ayodele/contracts-desk/internal/render"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
	"github.com/joseph-ayodele/contracts-desk/internal/session"
)

// Service wires the HTTP surface to the session registry.
type Service struct {
	registry  *session.Registry
	docs      *docstore.Store
	validator *schema.Validator
	export    *export.Service
	logger    *slog.Logger
}

// NewService builds the HTTP service.
func NewService(registry *session.Registry, docs *docstore.Store, validator *schema.Validator, exporter *export.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:  registry,
		docs:      docs,
		validator: validator,
		export:    exporter,
		logger:    logger,
	}
}

// Router mounts all routes.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(api chi.Router) {
		api.Post("/documents", s.registerDocument)
		api.Post("/sessions", s.createSession)
		api.Get("/sessions/{session_id}", s.getState)
		api.Post("/sessions/{session_id}/confirm", s.confirm)
		api.Post("/sessions/{session_id}/feedback", s.submitFeedback)
		api.Post("/sessions/{session_id}/abort", s.abort)
		api.Post("/sessions/{session_id}/render", s.retryRender)
		api.Get("/sessions/{session_id}/export", s.exportXLSX)
	})
	return r
}

func (s *Service) registerDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required", nil)
		return
	}

	res, err := s.docs.Register(r.Context(), req.Path)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":   RequestIDFrom(r),
		"document_id":  res.DocumentID,
		"deduplicated": res.Deduplicated,
		"format":       res.Format,
		"content_hash": res.HashHex,
	})
}

func (s *Service) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "document_id is required", nil)
		return
	}

	sess, err := s.registry.Create(r.Context(), req.DocumentID)
	if err != nil && sess == nil {
		s.writeErr(w, r, err)
		return
	}
	if err != nil {
		s.logger.Error("server.session_start_failed", "error", err)
	}
	s.writeSnapshot(w, r, http.StatusCreated, sess.Snapshot())
}

func (s *Service) getState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Service) confirm(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := sess.Confirm(r.Context()); err != nil && !errors.Is(err, render.ErrRenderFailed) {
		s.writeErr(w, r, err)
		return
	}
	// A render failure is not an API error: the session stays Confirmed
	// with render_pending set and the client sees that in the snapshot.
	s.writeSnapshot(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Service) submitFeedback(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var req struct {
		Instructions string         `json:"instructions"`
		Corrections  map[string]any `json:"corrections"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}

	fb := feedback.UserFeedback{Instructions: strings.TrimSpace(req.Instructions)}
	if len(req.Corrections) > 0 {
		snap := sess.Snapshot()
		def, err := s.validator.Definition(snap.ContractType)
		if err != nil {
			WriteError(w, r, http.StatusConflict, "BAD_STATE", "session has no contract type yet", nil)
			return
		}
		raw, _ := json.Marshal(req.Corrections)
		corrections, err := extract.NormalizeRaw(def, raw)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("corrections: %v", err), nil)
			return
		}
		fb.Corrections = corrections
	}

	if err := sess.SubmitFeedback(r.Context(), fb); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Service) abort(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = ReadJSON(r, &req)

	if err := sess.Abort(r.Context(), constants.AbortReason(req.Reason)); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Service) retryRender(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := sess.RetryRender(r.Context()); err != nil && !errors.Is(err, render.ErrRenderFailed) {
		s.writeErr(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Service) exportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	snap := sess.Snapshot()
	data, err := s.export.ExportSessionXLSX(snap)
	if err != nil {
		WriteError(w, r, http.StatusConflict, "NO_RESULT", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snap.SessionID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Service) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, snap session.Snapshot) {
	WriteJSON(w, status, map[string]any{
		"request_id": RequestIDFrom(r),
		"session":    snap,
	})
}

func (s *Service) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *common.AppError
	switch {
	case errors.Is(err, common.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, common.ErrEmptyFeedback):
		WriteError(w, r, http.StatusBadRequest, "EMPTY_FEEDBACK", err.Error(), nil)
	case errors.Is(err, common.ErrTerminalState):
		WriteError(w, r, http.StatusConflict, "TERMINAL_STATE", err.Error(), nil)
	case errors.As(err, &appErr):
		status := http.StatusConflict
		if errors.Is(appErr, common.ErrInternal) {
			status = http.StatusInternalServerError
		}
		WriteError(w, r, status, appErr.Code, appErr.Message, nil)
	case errors.Is(err, common.ErrInvalidInput):
		WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	default:
		s.logger.Error("server.internal_error", "error", err)
		WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
