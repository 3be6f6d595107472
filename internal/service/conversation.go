package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/config"
	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
)

type LoopState int

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopPaused
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopPaused:
		return "paused"
	case LoopStopped:
		return "stopped"
	}
	return "unknown"
}

// ConversationLoop alternates turns between two AI counterparts while an
// observer watches. Pausing cancels the in-flight turn; a reply that lands
// after cancellation is discarded, never half-applied.
type ConversationLoop struct {
	mgr      *Manager
	session  *Session
	observer *HumanParticipant
	byRole   map[model.Role]*AIParticipant

	mu      sync.Mutex
	state   LoopState
	current model.Role // role that speaks next
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConversationLoop(m *Manager, s *Session, observer *HumanParticipant, interviewer, interviewee *AIParticipant) *ConversationLoop {
	return &ConversationLoop{
		mgr:      m,
		session:  s,
		observer: observer,
		byRole: map[model.Role]*AIParticipant{
			model.RoleInterviewer: interviewer,
			model.RoleInterviewee: interviewee,
		},
		state:   LoopIdle,
		current: model.RoleInterviewee,
	}
}

func (l *ConversationLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *ConversationLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LoopIdle {
		return
	}
	l.spawnLocked()
	log.Info().Str("sessionId", l.session.ID).Msg("conversation loop started")
}

// Pause cancels the current turn and waits for the runner to exit.
func (l *ConversationLoop) Pause() {
	l.mu.Lock()
	if l.state != LoopRunning {
		l.mu.Unlock()
		return
	}
	l.state = LoopPaused
	l.cancel()
	done := l.done
	l.mu.Unlock()

	l.await(done)
	log.Info().Str("sessionId", l.session.ID).Msg("conversation loop paused")
}

// Resume restarts turn-taking from where Pause left off. It reports whether
// the loop actually resumed.
func (l *ConversationLoop) Resume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LoopPaused {
		return false
	}
	l.spawnLocked()
	log.Info().Str("sessionId", l.session.ID).Msg("conversation loop resumed")
	return true
}

// Stop ends the loop for good. Safe to call from any state and repeatedly.
func (l *ConversationLoop) Stop() {
	l.mu.Lock()
	if l.state == LoopStopped {
		l.mu.Unlock()
		return
	}
	wasRunning := l.state == LoopRunning
	l.state = LoopStopped
	if l.cancel != nil {
		l.cancel()
	}
	done := l.done
	l.mu.Unlock()

	if wasRunning {
		l.await(done)
	}
	log.Info().Str("sessionId", l.session.ID).Msg("conversation loop stopped")
}

func (l *ConversationLoop) spawnLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	l.state = LoopRunning
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *ConversationLoop) await(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(config.LoopStopTimeout):
		log.Warn().Str("sessionId", l.session.ID).Msg("conversation loop did not settle in time")
	}
}

// markStopped is the loop's own exit, as opposed to an external Stop.
func (l *ConversationLoop) markStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LoopStopped
}

func (l *ConversationLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		l.mu.Lock()
		turn := l.current
		l.mu.Unlock()

		speaker := l.byRole[turn]
		stimulusRole, _ := turn.Complement()
		stimulus, ok := l.session.lastEntryByRole(stimulusRole)
		if !ok {
			log.Warn().Str("sessionId", l.session.ID).Msg("no stimulus for next turn, loop exits")
			l.markStopped()
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, config.InferenceCallTimeout)
		reply, err := l.mgr.exchangeWith(callCtx, l.session, speaker, stimulus.Text)
		cancel()

		if ctx.Err() != nil {
			// Cancelled mid-flight: whatever came back is discarded whole.
			return
		}
		if err != nil {
			// A failed turn never ends the session. The same turn is
			// retried on the next cycle; only the observer or an end
			// signal stops the loop.
			log.Error().Err(err).Str("sessionId", l.session.ID).Msg("autonomous turn failed, retrying next cycle")
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.mgr.cfg.TurnInterval()):
			}
			continue
		}

		if l.finishTurn(speaker, reply) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.mgr.cfg.TurnInterval()):
		}
	}
}

// finishTurn applies one reply to the transcript and flips the turn. It
// returns true when the loop should exit.
func (l *ConversationLoop) finishTurn(speaker *AIParticipant, reply inference.Reply) bool {
	if reply.Intent == inference.IntentEndInterview {
		l.notify(model.EventToolCallDetected, model.ToolCallDetectedEvent{SessionID: l.session.ID})
		l.markStopped()
		return true
	}

	if containsEndSignal(reply.Text) {
		l.notify(model.EventToolCallDetected, model.ToolCallDetectedEvent{SessionID: l.session.ID})
		l.markStopped()
		return true
	}

	clean := Sanitize(reply.Text)
	if len([]rune(clean)) < config.MinMeaningfulReplyLen {
		// Too short to advance the interview: retry the same turn.
		log.Debug().Str("sessionId", l.session.ID).Str("role", string(speaker.role)).Msg("reply discarded as non-meaningful")
		return false
	}

	l.mgr.appendAndLog(l.session, speaker.Name(), model.Entry{
		Role: speaker.role,
		Kind: model.SenderAssistant,
		Text: clean,
	})
	l.notify(model.EventMessageForwarded, model.MessageForwardedEvent{
		SessionID: l.session.ID,
		Text:      clean,
		Role:      speaker.role,
	})

	l.mu.Lock()
	next, _ := speaker.role.Complement()
	l.current = next
	l.mu.Unlock()
	return false
}

func (l *ConversationLoop) notify(eventType string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.mgr.send(ctx, l.session.connOf(l.observer), eventType, payload)
}

// submitObserver handles control events in observer mode, where no
// dispatcher goroutine exists and the loop is steered directly.
func (m *Manager) submitObserver(ctx context.Context, s *Session, participantID string, env model.EnvelopeIn) error {
	obs := s.humanByID(participantID)
	if obs == nil {
		return apperrors.NotFound("Participant")
	}
	conn := s.connOf(obs)

	switch env.MsgType {
	case model.StopConversationRequest:
		s.loop.Pause()
		return nil

	case model.ContinueConversationRequest:
		if s.loop.Resume() {
			m.send(ctx, conn, model.EventConversationContinueAccepted, map[string]string{"sessionId": s.ID})
		} else {
			m.send(ctx, conn, model.EventMessageRejected, model.MessageRejectedEvent{
				Reason: "The conversation cannot be continued.",
			})
		}
		return nil

	case model.EndSessionRequest:
		go m.terminate(s, obs.id, reasonEndAccepted, reasonEndAccepted)
		return nil

	case model.DebriefingRequest:
		go func() {
			s.loop.Pause()
			m.runDebrief(s, obs)
			m.terminate(s, obs.id, reasonDebriefed, reasonDebriefed)
		}()
		return nil

	case model.MessageSubmitted:
		m.send(ctx, conn, model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: "Observers cannot submit messages.",
		})
		return nil

	default:
		m.send(ctx, conn, model.EventMessageRejected, model.MessageRejectedEvent{
			Reason: fmt.Sprintf("Unsupported message type: %s", env.MsgType),
		})
		return nil
	}
}
