package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/audit"
	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/sse"
	"github.com/pensim/interview-server-go/internal/util"
)

// EventsHandler serves the participant's server-sent event stream. Opening
// the stream is what moves a registered participant into pairing; closing
// it is the disconnect signal.
type EventsHandler struct {
	broker  *sse.Broker
	manager SessionManager
}

func NewEventsHandler(broker *sse.Broker, manager SessionManager) *EventsHandler {
	return &EventsHandler{
		broker:  broker,
		manager: manager,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")
	if !util.IsValidParticipantID(participantID) {
		writeError(w, apperrors.NotFound("Participant"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	// Subscribe before resolving the pairing so no establishment event can
	// slip past between the two.
	client := h.broker.Subscribe(participantID)
	defer h.broker.Unsubscribe(client)

	conn := sse.NewParticipantConn(h.broker, participantID)
	if err := h.manager.Connect(r.Context(), participantID, conn); err != nil {
		writeError(w, err)
		return
	}
	defer h.manager.Disconnect(participantID)

	audit.LogFromRequest(r, audit.Event{
		Type:          audit.EventParticipantConnect,
		ParticipantID: participantID,
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	log.Info().
		Str("participantId", participantID).
		Msg("event stream opened")

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("participantId", participantID).
				Msg("event stream closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("participantId", participantID).
				Msg("event stream closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("participantId", participantID).
					Msg("heartbeat failed, closing stream")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
