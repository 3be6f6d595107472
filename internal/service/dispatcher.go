package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/config"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
)

// runDispatcher is the single consumer of a session's inbox. One goroutine
// per session keeps transcript appends totally ordered without finer locks.
func (m *Manager) runDispatcher(s *Session) {
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.inbox:
			if done := m.dispatch(s, ev); done {
				return
			}
		}
	}
}

// dispatch handles one inbound event. It returns true once the session has
// been terminated and the dispatcher should exit.
func (m *Manager) dispatch(s *Session, ev inboundEvent) bool {
	sender := s.humanByID(ev.participantID)
	if sender == nil {
		log.Warn().
			Str("sessionId", s.ID).
			Str("participantId", ev.participantID).
			Msg("event from participant not in session")
		return false
	}

	switch ev.msgType {
	case model.MessageSubmitted:
		m.handleMessage(s, sender, ev.text)
		return false

	case model.EndSessionRequest:
		m.terminate(s, sender.id, reasonEndAccepted, reasonPeerEnded)
		return true

	case model.DebriefingRequest:
		m.runDebrief(s, sender)
		m.terminate(s, sender.id, reasonDebriefed, reasonDebriefed)
		return true

	default:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.send(ctx, s.connOf(sender), model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: fmt.Sprintf("Unsupported message type: %s", ev.msgType),
		})
		cancel()
		return false
	}
}

func (m *Manager) handleMessage(s *Session, sender *HumanParticipant, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.InferenceCallTimeout)
	defer cancel()

	text = strings.TrimSpace(text)
	if text == "" {
		m.send(ctx, s.connOf(sender), model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: "Empty message",
		})
		return
	}

	m.appendAndLog(s, sender.name, model.Entry{
		Role: sender.role,
		Kind: model.SenderUser,
		Text: text,
	})

	peer := s.counterpartOf(sender.role)
	switch p := peer.(type) {
	case *AIParticipant:
		m.aiExchange(ctx, s, sender, p, text)
	case *HumanParticipant:
		peerConn := s.connOf(p)
		if peerConn == nil {
			log.Info().
				Str("sessionId", s.ID).
				Str("participantId", p.id).
				Msg("peer offline, message kept in transcript only")
			return
		}
		m.send(ctx, peerConn, model.EventMessageForwarded, model.MessageForwardedEvent{
			SessionID: s.ID,
			Text:      text,
			Role:      sender.role,
		})
	default:
		m.send(ctx, s.connOf(sender), model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: "No counterpart in session",
		})
	}
}

// aiExchange sends the human's utterance to the AI counterpart and relays
// the reply.
func (m *Manager) aiExchange(ctx context.Context, s *Session, human *HumanParticipant, ai *AIParticipant, text string) {
	conn := s.connOf(human)
	reply, err := m.exchangeWith(ctx, s, ai, text)
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("inference exchange failed")
		m.send(ctx, conn, model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: "The assistant is unavailable right now.",
		})
		return
	}

	if reply.Intent == inference.IntentEndInterview || containsEndSignal(reply.Text) {
		m.send(ctx, conn, model.EventToolCallDetected, model.ToolCallDetectedEvent{SessionID: s.ID})
		return
	}

	clean := Sanitize(reply.Text)
	if clean == "" {
		log.Warn().Str("sessionId", s.ID).Msg("AI reply empty after sanitization, dropped")
		return
	}

	m.appendAndLog(s, ai.Name(), model.Entry{
		Role: ai.role,
		Kind: model.SenderAssistant,
		Text: clean,
	})
	m.send(ctx, conn, model.EventMessageForwarded, model.MessageForwardedEvent{
		SessionID: s.ID,
		Text:      clean,
		Role:      ai.role,
	})
}

// exchangeWith runs one inference turn for the given AI participant. A
// stale conversation handle is recreated, re-primed, and retried exactly
// once; the second failure is the caller's problem.
func (m *Manager) exchangeWith(ctx context.Context, s *Session, ai *AIParticipant, text string) (inference.Reply, error) {
	if err := m.ensureHandle(ctx, s, ai); err != nil {
		return inference.Reply{}, err
	}

	reply, err := m.ai.Send(ctx, s.aiHandle(ai), text, m.allowedIntents(ai))
	if errors.Is(err, inference.ErrHandleNotFound) {
		log.Warn().Str("sessionId", s.ID).Msg("stale conversation handle, recreating")
		s.setAIHandle(ai, "")
		if err = m.ensureHandle(ctx, s, ai); err == nil {
			reply, err = m.ai.Send(ctx, s.aiHandle(ai), text, m.allowedIntents(ai))
		}
	}
	return reply, err
}

// ensureHandle lazily creates and primes the AI participant's conversation.
// Priming includes the transcript so far, so a handle rebuilt mid-session
// keeps its context.
func (m *Manager) ensureHandle(ctx context.Context, s *Session, ai *AIParticipant) error {
	if s.aiHandle(ai) != "" {
		return nil
	}

	handle, err := m.ai.CreateConversation(ctx)
	if err != nil {
		return err
	}

	chunks := []string{m.promptFor(ai.role)}
	if history := renderTranscript(s.snapshotTranscript()); history != "" {
		chunks = append(chunks, "Conversation so far:\n"+history)
	}
	if err := m.ai.Prime(ctx, handle, chunks); err != nil {
		return err
	}

	s.setAIHandle(ai, handle)
	persist("save thread", s.ID, func() error {
		return m.store.SaveThread(ctx, s.ID, ai.assistantID, string(handle))
	})
	return nil
}

// allowedIntents grants the end-of-interview signal to interviewer AIs only.
func (m *Manager) allowedIntents(ai *AIParticipant) []inference.Intent {
	if ai.role == model.RoleInterviewer {
		return []inference.Intent{inference.IntentEndInterview}
	}
	return nil
}

// runDebrief summarizes the interview and delivers the result before the
// session is torn down.
func (m *Manager) runDebrief(s *Session, requester *HumanParticipant) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DebriefTimeout)
	defer cancel()

	payload := model.DebriefingResponseEvent{SessionID: s.ID}
	transcript := renderTranscript(s.snapshotTranscript())
	if transcript == "" {
		payload.Error = "Nothing to debrief: the transcript is empty."
	} else if data, err := m.debriefer.GenerateDebrief(ctx, transcript); err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("debrief generation failed")
		payload.Error = "Debriefing failed."
	} else {
		payload.Data = data
	}

	m.send(ctx, s.connOf(requester), model.EventDebriefingResponse, payload)
}

// counterpartOf returns the first participant holding a different
// conversational role. Observers never count as counterparts.
func (s *Session) counterpartOf(role model.Role) Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Role() != role && p.Role() != model.RoleObserver {
			return p
		}
	}
	return nil
}

// renderTranscript flattens spoken entries into a plain text exchange,
// skipping system priming entries.
func renderTranscript(entries []model.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Kind == model.SenderSystem {
			continue
		}
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
