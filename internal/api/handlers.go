package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// handleBroadcast performs the same announcement fan-out as the wizard path,
// but for an explicit recipient list supplied by the caller.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var req models.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	assignment, err := s.resolveAssignment(r, req)
	if err != nil {
		slog.Error("API handleBroadcast assignment resolution failed", "code", req.Code, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("internal error"))
		return
	}

	result := s.bcast.BroadcastToList(r.Context(), assignment, req.Students)
	slog.Info("API handleBroadcast finished", "code", req.Code, "sent", result.Sent, "failed", result.Failed)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// resolveAssignment prefers the stored record for the code and falls back to
// the fields supplied in the request.
func (s *Server) resolveAssignment(r *http.Request, req models.BroadcastRequest) (*models.Assignment, error) {
	stored, err := s.store.GetAssignmentByCode(r.Context(), req.Code)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	deadline := time.Now().Add(7 * 24 * time.Hour)
	if req.Deadline != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, req.Deadline); parseErr == nil {
			deadline = parsed
		} else if parsed, parseErr := time.Parse("2006-01-02 15:04", req.Deadline); parseErr == nil {
			deadline = parsed
		}
	}
	return &models.Assignment{
		Code:          req.Code,
		Title:         req.Title,
		ClassName:     req.ClassName,
		Deadline:      deadline,
		AttachmentURL: req.PDFURL,
	}, nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
