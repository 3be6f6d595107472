package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/audit"
	"github.com/pensim/interview-server-go/internal/config"
	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
)

type sessionState int

const (
	sessionActive sessionState = iota
	sessionTerminating
	sessionClosed
)

// Termination reasons carried in SessionTerminated payloads. Self and peer
// initiated endings are distinguished so the client can word them apart.
const (
	reasonEndAccepted = "End session request accepted."
	reasonPeerEnded   = "Peer ended the session."
	reasonDebriefed   = "Debriefing complete."
	reasonExpired     = "Session expired after disconnect."
	reasonShutdown    = "Server shutting down."
)

const inboxSize = 32

type inboundEvent struct {
	participantID string
	msgType       model.MessageType
	text          string
}

// Session is the pairing unit: the participants currently joined, in
// insertion order, plus the append-only transcript. It exclusively owns both
// for its lifetime.
type Session struct {
	ID string

	mu             sync.Mutex
	participants   []Participant
	transcript     []model.Entry
	state          sessionState
	patientID      string
	humanGoneSince time.Time // zero while any human connection is live

	inbox chan inboundEvent
	quit  chan struct{}
	loop  *ConversationLoop // set only in observer mode
}

func newSession(id string) *Session {
	return &Session{
		ID:    id,
		inbox: make(chan inboundEvent, inboxSize),
		quit:  make(chan struct{}),
	}
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sessionActive
}

func (s *Session) appendEntry(entry model.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, entry)
}

// snapshotTranscript copies the transcript; entries themselves are immutable.
func (s *Session) snapshotTranscript() []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Entry(nil), s.transcript...)
}

func (s *Session) snapshotParticipants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Participant(nil), s.participants...)
}

// lastEntryByRole returns the most recent transcript entry authored by role.
func (s *Session) lastEntryByRole(role model.Role) (model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Role == role && s.transcript[i].Kind != model.SenderSystem {
			return s.transcript[i], true
		}
	}
	return model.Entry{}, false
}

func (s *Session) participantByID(id string) Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// humanByID returns the human participant with the given id, if joined.
func (s *Session) humanByID(id string) *HumanParticipant {
	if p, ok := s.participantByID(id).(*HumanParticipant); ok {
		return p
	}
	return nil
}

// connOf reads a human's connection under the session lock. Disconnects and
// rebinds replace it from other goroutines than the dispatcher's.
func (s *Session) connOf(p *HumanParticipant) Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.conn
}

// aiHandle and setAIHandle guard the lazily created conversation handle,
// which the reaper and shutdown paths read while an exchange may be writing.
func (s *Session) aiHandle(p *AIParticipant) inference.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.handle
}

func (s *Session) setAIHandle(p *AIParticipant, h inference.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.handle = h
}

func (s *Session) anyHumanConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if hp, ok := p.(*HumanParticipant); ok && hp.conn != nil {
			return true
		}
	}
	return false
}

// Manager owns the registry, the live sessions, and the pairing resolution
// path. All registry and membership mutation happens under mu: connections
// are served by parallel goroutines, so the single-dispatch discipline of
// the design is enforced with a lock here.
type Manager struct {
	mu            sync.Mutex
	registry      *Registry
	sessions      map[string]*Session
	byParticipant map[string]string // participant id -> session id

	store     Store
	ai        inference.Client
	debriefer inference.Debriefer
	cfg       *config.Config
}

func NewManager(cfg *config.Config, store Store, ai inference.Client, debriefer inference.Debriefer) *Manager {
	return &Manager{
		registry:      NewRegistry(),
		sessions:      make(map[string]*Session),
		byParticipant: make(map[string]string),
		store:         store,
		ai:            ai,
		debriefer:     debriefer,
		cfg:           cfg,
	}
}

// Register creates a participant identity in the waiting partition.
func (m *Manager) Register(role model.Role, name, targetPatientID, resumeSessionID string) (string, error) {
	if !role.Valid() {
		return "", apperrors.InvalidRole(string(role))
	}
	if name == "" {
		name = "Anonymous"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.registry.Register(role, name, targetPatientID, resumeSessionID)
	return p.id, nil
}

// Connect binds a live connection to a participant and resolves its pairing.
// Rebinding a participant that is already inside a session is the in-memory
// reconnection path: the session and its transcript are untouched.
func (m *Manager) Connect(ctx context.Context, participantID string, conn Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.byParticipant[participantID]; ok {
		s := m.sessions[sid]
		if s != nil && s.isActive() {
			m.rebindConn(ctx, s, participantID, conn)
			return nil
		}
	}

	p, err := m.registry.Bind(participantID, conn)
	if err != nil {
		return err
	}
	return m.resolve(ctx, p)
}

func (m *Manager) rebindConn(ctx context.Context, s *Session, participantID string, conn Conn) {
	if hp := s.humanByID(participantID); hp != nil {
		s.mu.Lock()
		hp.conn = conn
		hp.status = model.StatusEstablished
		hp.disconnectedAt = time.Time{}
		s.humanGoneSince = time.Time{}
		s.mu.Unlock()

		log.Info().
			Str("participantId", participantID).
			Str("sessionId", s.ID).
			Msg("participant connection rebound")

		audit.Log(ctx, audit.Event{
			Type:          audit.EventParticipantReconnect,
			ParticipantID: participantID,
			SessionID:     s.ID,
		})

		m.send(ctx, conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	}
}

// Disconnect records a lost connection. Sessions are not torn down here:
// the participant may rebind within the session TTL, after which the reaper
// finishes the job.
func (m *Manager) Disconnect(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.byParticipant[participantID]; ok {
		s := m.sessions[sid]
		if s == nil {
			return
		}
		if hp := s.humanByID(participantID); hp != nil {
			s.mu.Lock()
			hp.conn = nil
			hp.disconnectedAt = time.Now()
			s.mu.Unlock()
			if !s.anyHumanConnected() {
				s.mu.Lock()
				s.humanGoneSince = time.Now()
				s.mu.Unlock()
			}
		}

		log.Info().
			Str("participantId", participantID).
			Str("sessionId", s.ID).
			Msg("participant disconnected, session kept for rebind")

		if s.loop != nil {
			go s.loop.Pause()
		}
		return
	}

	if p := m.registry.Get(participantID); p != nil {
		p.conn = nil
		p.status = model.StatusRegistered
		p.disconnectedAt = time.Now()
	}
}

// Submit routes an inbound client event into the participant's session.
func (m *Manager) Submit(ctx context.Context, participantID string, env model.EnvelopeIn) error {
	m.mu.Lock()
	sid, inSession := m.byParticipant[participantID]
	var s *Session
	if inSession {
		s = m.sessions[sid]
	}
	waiting := m.registry.Get(participantID) != nil
	m.mu.Unlock()

	if s == nil {
		if waiting {
			return apperrors.PeerUnavailable()
		}
		return apperrors.NotFound("Session")
	}

	if s.loop != nil {
		return m.submitObserver(ctx, s, participantID, env)
	}

	select {
	case s.inbox <- inboundEvent{participantID: participantID, msgType: env.MsgType, text: env.Text}:
		return nil
	case <-s.quit:
		return apperrors.NotFound("Session")
	default:
		return apperrors.Internal("Session inbox is full")
	}
}

// terminate drives Active -> Terminating -> Closed. It is idempotent and
// always releases registry entries, whichever error path invoked it.
func (m *Manager) terminate(s *Session, initiatorID, selfReason, peerReason string) {
	s.mu.Lock()
	if s.state != sessionActive {
		s.mu.Unlock()
		return
	}
	s.state = sessionTerminating
	s.mu.Unlock()

	defer m.releaseSession(s)

	close(s.quit)

	if s.loop != nil {
		s.loop.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transcript := s.snapshotTranscript()
	if data, err := json.Marshal(transcript); err == nil {
		persist("save final transcript", s.ID, func() error {
			return m.store.SaveFinalTranscript(ctx, s.ID, data)
		})
	}
	persist("mark completed", s.ID, func() error {
		return m.store.MarkCompleted(ctx, s.ID)
	})

	for _, part := range s.snapshotParticipants() {
		switch p := part.(type) {
		case *HumanParticipant:
			conn := s.connOf(p)
			if conn == nil {
				continue
			}
			reason := peerReason
			if p.id == initiatorID {
				reason = selfReason
			}
			m.send(ctx, conn, model.EventSessionTerminated, model.SessionTerminatedEvent{
				SessionID: s.ID,
				Reason:    reason,
			})
			conn.Close()
		case *AIParticipant:
			handle := s.aiHandle(p)
			if handle == "" {
				continue
			}
			if err := m.ai.Delete(ctx, handle); err != nil {
				log.Warn().Err(err).Str("sessionId", s.ID).Msg("failed to delete inference conversation")
			}
		}
	}

	s.mu.Lock()
	s.state = sessionClosed
	s.mu.Unlock()

	log.Info().
		Str("sessionId", s.ID).
		Int("transcriptLen", len(transcript)).
		Msg("session terminated")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionTerminate,
		SessionID: s.ID,
		Details:   map[string]interface{}{"reason": selfReason},
	})
}

func (m *Manager) releaseSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range s.snapshotParticipants() {
		delete(m.byParticipant, p.ID())
	}
	delete(m.sessions, s.ID)
}

// ReapIdle terminates sessions whose every human connection has been gone
// longer than ttl, and drops stale waiting registrations.
func (m *Manager) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var idle []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		gone := !s.humanGoneSince.IsZero() && s.humanGoneSince.Before(cutoff)
		s.mu.Unlock()
		if gone {
			idle = append(idle, s)
		}
	}
	released := m.registry.ReleaseStale(ttl)
	m.mu.Unlock()

	for _, s := range idle {
		log.Info().Str("sessionId", s.ID).Msg("reaping idle session")
		m.terminate(s, "", reasonExpired, reasonExpired)
	}
	return len(idle) + released
}

// Shutdown terminates every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.terminate(s, "", reasonShutdown, reasonShutdown)
	}
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// appendAndLog appends to the in-memory transcript and mirrors the entry to
// the chat log. The log write is fire-and-forget.
func (m *Manager) appendAndLog(s *Session, speakerName string, entry model.Entry) {
	s.appendEntry(entry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	persist("append log", s.ID, func() error {
		return m.store.AppendLog(ctx, model.AppendChatLogParams{
			SessionID:   s.ID,
			SpeakerName: speakerName,
			Role:        entry.Role,
			SenderKind:  entry.Kind,
			Message:     entry.Text,
		})
	})
}

func (m *Manager) send(ctx context.Context, conn Conn, eventType string, payload any) {
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, eventType, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to send event")
	}
}
