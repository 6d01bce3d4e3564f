// Package api provides HTTP handlers for coachd endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coachwell/coachd/internal/models"
)

// Pipeline is the coaching surface the API exposes. Satisfied by
// *coach.Pipeline.
type Pipeline interface {
	Process(ctx context.Context, userID, text string) (string, error)
	AcceptPractice(userID string) bool
	DeclinePractice(userID string) bool
	PausePractice(userID string) bool
	ResumePractice(userID string) bool
	AdvancePracticeStep(userID, step string) bool
	CompletePractice(userID string, effectiveness float64) bool
	StabilizeFromCrisis(userID string) bool
	Metrics() (models.DecisionMetrics, error)
}

// messageRequest is the body of POST /v1/messages.
type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// messageResponse is the result payload of POST /v1/messages.
type messageResponse struct {
	RequestID string `json:"request_id"`
	Reply     string `json:"reply"`
}

// practiceRequest is the body of the practice lifecycle endpoints.
type practiceRequest struct {
	UserID        string  `json:"user_id"`
	Step          string  `json:"step,omitempty"`
	Effectiveness float64 `json:"effectiveness,omitempty"`
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messagesHandler: processing message request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	requestID := uuid.NewString()
	reply, err := s.pipeline.Process(r.Context(), req.UserID, req.Text)
	if err != nil {
		if errors.Is(err, models.ErrEmptyUserID) {
			slog.Warn("Server.messagesHandler: validation failed", "error", err, "requestID", requestID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.messagesHandler: pipeline failed", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.messagesHandler: turn processed", "userID", req.UserID, "requestID", requestID)
	writeJSONResponse(w, http.StatusOK, models.Success(messageResponse{RequestID: requestID, Reply: reply}))
}

// practiceHandler routes POST /v1/practice/{action}.
func (s *Server) practiceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.practiceHandler: processing practice request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.practiceHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	action := strings.TrimPrefix(r.URL.Path, "/v1/practice/")
	action = strings.TrimSuffix(action, "/")

	var req practiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.practiceHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}

	var ok bool
	switch action {
	case "accept":
		ok = s.pipeline.AcceptPractice(req.UserID)
	case "decline":
		ok = s.pipeline.DeclinePractice(req.UserID)
	case "pause":
		ok = s.pipeline.PausePractice(req.UserID)
	case "resume":
		ok = s.pipeline.ResumePractice(req.UserID)
	case "advance":
		if req.Step == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: step"))
			return
		}
		ok = s.pipeline.AdvancePracticeStep(req.UserID, req.Step)
	case "complete":
		ok = s.pipeline.CompletePractice(req.UserID, req.Effectiveness)
	case "stabilize":
		ok = s.pipeline.StabilizeFromCrisis(req.UserID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown practice action"))
		return
	}

	if !ok {
		slog.Warn("Server.practiceHandler: transition rejected", "action", action, "userID", req.UserID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Action not allowed in current state"))
		return
	}
	slog.Info("Server.practiceHandler: practice action applied", "action", action, "userID", req.UserID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Practice action applied", nil))
}

// metricsHandler returns decision-log aggregates (GET /v1/metrics).
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.metricsHandler: processing metrics request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.metricsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	metrics, err := s.pipeline.Metrics()
	if err != nil {
		slog.Error("Server.metricsHandler: failed to fetch metrics", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch metrics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(metrics))
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// The decision log doubles as a health indicator for the store.
	if metrics, err := s.pipeline.Metrics(); err != nil {
		slog.Warn("Server.healthHandler: failed to fetch decision metrics", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch decision metrics"
	} else {
		healthData["total_decisions"] = metrics.TotalDecisions
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
