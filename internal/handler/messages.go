package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/util"
)

type MessagesHandler struct {
	manager SessionManager
}

func NewMessagesHandler(manager SessionManager) *MessagesHandler {
	return &MessagesHandler{manager: manager}
}

// ServeHTTP accepts one inbound client event. Acceptance means the event
// was queued for the session dispatcher; outcomes arrive on the stream.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")
	if !util.IsValidParticipantID(participantID) {
		writeError(w, apperrors.NotFound("Participant"))
		return
	}

	var env model.EnvelopeIn
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if env.MsgType == "" {
		writeError(w, apperrors.ValidationError("msgType is required"))
		return
	}

	if err := h.manager.Submit(r.Context(), participantID, env); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
