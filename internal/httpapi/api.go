package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/echocoach/echo/internal/accounts"
	"github.com/echocoach/echo/internal/auth"
	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/policy"
	"github.com/echocoach/echo/internal/reports"
	"github.com/echocoach/echo/internal/validation"
)

// createReportRequest is the body of POST /api/reports. The id and createdAt are assigned by the
// server; date defaults to createdAt.
type createReportRequest struct {
	Date         *time.Time          `json:"date"`
	Duration     int                 `json:"duration" validate:"min=0"`
	WordCount    int                 `json:"wordCount" validate:"min=0"`
	OverallScore int                 `json:"overallScore" validate:"min=0,max=100"`
	Metrics      coach.RecordMetrics `json:"metrics"`
	Transcript   string              `json:"transcript"`
	Strengths    []string            `json:"strengths"`
	Improvements []string            `json:"improvements"`
}

func (req createReportRequest) record() coach.SessionRecord {
	rec := coach.SessionRecord{
		Duration:     req.Duration,
		WordCount:    req.WordCount,
		OverallScore: req.OverallScore,
		Metrics:      req.Metrics,
		Transcript:   req.Transcript,
		Strengths:    req.Strengths,
		Improvements: req.Improvements,
	}
	if req.Date != nil {
		rec.Date = *req.Date
	}
	return rec
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.authAvailable(w) {
		return
	}
	var req auth.RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sess, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authAvailable(w) {
		return
	}
	var req auth.LoginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sess, err := s.auth.Login(r.Context(), req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid credentials"})
		return
	}
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	profile, err := s.auth.Profile(r.Context(), userID)
	if errors.Is(err, accounts.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, errorResponse{Message: "User not found"})
		return
	}
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req auth.ProfileRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	profile, err := s.auth.UpdateProfile(r.Context(), userID, req)
	if errors.Is(err, accounts.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, errorResponse{Message: "User not found"})
		return
	}
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if !s.reportsAvailable(w) {
		return
	}
	userID, _ := auth.UserID(r.Context())
	var req createReportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	rec := req.record()
	var redacted []string
	rec.Transcript, redacted = policy.RedactPII(rec.Transcript)
	if len(redacted) > 0 {
		s.logger(r.Context()).WithField("rules", redacted).Info("redacted report transcript")
	}

	report, err := s.reports.Create(r.Context(), reports.Report{SessionRecord: rec, UserID: userID})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.reportsAvailable(w) {
		return
	}
	userID, _ := auth.UserID(r.Context())
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", reports.DefaultLimit)
	result, err := s.reports.List(r.Context(), userID, page, limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReportStats(w http.ResponseWriter, r *http.Request) {
	if !s.reportsAvailable(w) {
		return
	}
	userID, _ := auth.UserID(r.Context())
	stats, err := s.reports.Stats(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.reportsAvailable(w) {
		return
	}
	userID, _ := auth.UserID(r.Context())
	report, err := s.reports.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if !s.reportsAvailable(w) {
		return
	}
	userID, _ := auth.UserID(r.Context())
	if err := s.reports.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, errorResponse{Message: "Report deleted successfully"})
}

func (s *Server) authAvailable(w http.ResponseWriter) bool {
	if s.auth == nil {
		respondError(w, http.StatusServiceUnavailable, "auth_unavailable", "Accounts are not configured")
		return false
	}
	return true
}

func (s *Server) reportsAvailable(w http.ResponseWriter) bool {
	if s.reports == nil {
		respondError(w, http.StatusServiceUnavailable, "reports_unavailable", "Reports are not configured")
		return false
	}
	return true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

// respondServiceError maps domain errors onto status codes. Anything unrecognised is logged and
// answered with a generic 500.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Message: "Validation failed",
			Code:    "validation_failed",
			Errors:  verr.Fields,
		})
	case errors.Is(err, reports.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Message: "Report not found"})
	default:
		s.logger(r.Context()).WithError(err).Error("request failed")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Message: "Server error"})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
