package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pensim/interview-server-go/internal/audit"
	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/util"
)

type RegisterHandler struct {
	manager SessionManager
}

func NewRegisterHandler(manager SessionManager) *RegisterHandler {
	return &RegisterHandler{manager: manager}
}

type registerRequest struct {
	Role            string `json:"role"`
	Name            string `json:"name"`
	TargetPatientID string `json:"targetPatientId,omitempty"`
	ResumeSessionID string `json:"resumeSessionId,omitempty"`
}

type registerResponse struct {
	ParticipantID string `json:"participantId"`
}

// ServeHTTP creates a participant identity. The returned id is the handle
// for the event stream and message endpoints.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	role := model.Role(req.Role)
	if !role.Valid() {
		writeError(w, apperrors.InvalidRole(req.Role))
		return
	}
	if req.ResumeSessionID != "" {
		if role == model.RoleObserver {
			writeError(w, apperrors.ValidationError("Observer sessions cannot be resumed"))
			return
		}
		if !util.IsValidUUID(req.ResumeSessionID) {
			writeError(w, apperrors.ValidationError("Invalid resumeSessionId"))
			return
		}
	}

	participantID, err := h.manager.Register(role, req.Name, req.TargetPatientID, req.ResumeSessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:          audit.EventParticipantRegister,
		ParticipantID: participantID,
		Details:       map[string]interface{}{"role": req.Role},
	})

	writeJSON(w, http.StatusCreated, registerResponse{ParticipantID: participantID})
}
