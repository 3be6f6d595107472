package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/audit"

	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/util"
)

// resolve decides what to do with a freshly bound participant, in strict
// priority order: resume a live session, rehydrate a persisted one, pair
// with the longest-waiting complementary human, synthesize an AI peer, or
// stay in the waiting partition. Caller holds m.mu.
func (m *Manager) resolve(ctx context.Context, p *HumanParticipant) error {
	if rid := p.resumeSessionID; rid != "" {
		if s, ok := m.sessions[rid]; ok && s.isActive() {
			if m.resumeInto(ctx, s, p) {
				m.registry.Release(p.id)
				return nil
			}
			log.Info().
				Str("participantId", p.id).
				Str("sessionId", rid).
				Str("role", string(p.role)).
				Msg("no human of that role in resume target, falling back to fresh pairing")
		} else {
			record, err := m.store.LoadActiveSession(ctx, rid)
			if err != nil {
				log.Warn().Err(err).Str("sessionId", rid).Msg("resume lookup failed")
			}
			if record != nil {
				m.registry.Release(p.id)
				return m.rehydrate(ctx, p, record)
			}
			log.Info().
				Str("participantId", p.id).
				Str("sessionId", rid).
				Msg("resume target not found, falling back to fresh pairing")
		}
	}

	if p.role == model.RoleObserver {
		m.registry.Release(p.id)
		return m.startObserverSession(ctx, p)
	}

	peerRole, ok := p.role.Complement()
	if !ok {
		return apperrors.InvalidRole(string(p.role))
	}

	if peer := m.registry.TakePeer(peerRole); peer != nil {
		m.registry.Release(p.id)
		m.establishHuman(ctx, p, peer)
		return nil
	}

	if err := m.establishAI(ctx, p); err != nil {
		log.Warn().Err(err).Str("participantId", p.id).Msg("AI pairing failed, participant stays waiting")
		m.send(ctx, p.conn, model.EventPrepared, map[string]string{"status": string(model.StatusPrepared)})
		return nil
	}
	m.registry.Release(p.id)
	return nil
}

// resumeInto joins p to a session that is still live in memory, replacing
// the human identity of the same role it registered under before the
// disconnect. It reports whether such a replacement happened; a session
// holding no human of p's role cannot be resumed by p.
func (m *Manager) resumeInto(ctx context.Context, s *Session, p *HumanParticipant) bool {
	s.mu.Lock()
	replaced := false
	for i, existing := range s.participants {
		hp, ok := existing.(*HumanParticipant)
		if !ok || hp.role != p.role {
			continue
		}
		delete(m.byParticipant, hp.id)
		s.participants[i] = p
		replaced = true
		break
	}
	if replaced {
		s.humanGoneSince = time.Time{}
	}
	s.mu.Unlock()

	if !replaced {
		return false
	}

	p.status = model.StatusEstablished
	m.byParticipant[p.id] = s.ID

	log.Info().
		Str("participantId", p.id).
		Str("sessionId", s.ID).
		Msg("participant resumed live session")

	audit.Log(ctx, audit.Event{
		Type:          audit.EventSessionResume,
		ParticipantID: p.id,
		SessionID:     s.ID,
	})

	m.send(ctx, p.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	return true
}

// rehydrate rebuilds a session from its persisted record and chat log,
// typically after a server restart. The stored conversation handle is
// reused optimistically; if the backend no longer knows it, the dispatcher
// recreates it on the first exchange.
func (m *Manager) rehydrate(ctx context.Context, p *HumanParticipant, record *model.SessionRecord) error {
	rows, err := m.store.LoadHistory(ctx, record.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, "Failed to load session history", err)
	}

	s := newSession(record.ID)
	for _, row := range rows {
		s.transcript = append(s.transcript, model.Entry{
			Role: row.Role,
			Kind: row.SenderKind,
			Text: row.Message,
		})
	}
	if record.PatientID != nil {
		s.patientID = *record.PatientID
	}

	aiRole, _ := p.role.Complement()
	ai := &AIParticipant{
		id:          util.GenerateID(),
		role:        aiRole,
		assistantID: m.cfg.ChatModel,
	}
	if record.AssistantID != nil && *record.AssistantID != "" {
		ai.assistantID = *record.AssistantID
	}
	if record.ThreadID != nil {
		ai.handle = inference.Handle(*record.ThreadID)
	}

	p.status = model.StatusEstablished
	s.participants = []Participant{p, ai}

	m.install(s)
	go m.runDispatcher(s)

	log.Info().
		Str("participantId", p.id).
		Str("sessionId", s.ID).
		Int("historyLen", len(rows)).
		Msg("session rehydrated from store")

	m.send(ctx, p.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	return nil
}

// establishHuman pairs two waiting humans into a new session.
func (m *Manager) establishHuman(ctx context.Context, p, peer *HumanParticipant) {
	s := newSession(uuid.NewString())
	p.status = model.StatusEstablished
	peer.status = model.StatusEstablished
	s.participants = []Participant{p, peer}
	if p.targetPatientID != "" {
		s.patientID = p.targetPatientID
	} else {
		s.patientID = peer.targetPatientID
	}

	m.createRecord(s, p, nil)
	m.install(s)
	go m.runDispatcher(s)

	log.Info().
		Str("sessionId", s.ID).
		Str("participantId", p.id).
		Str("peerId", peer.id).
		Msg("human pair established")

	m.send(ctx, peer.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	m.send(ctx, p.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
}

// establishAI pairs p with a synthesized counterpart of the complementary
// role. The inference conversation itself is created lazily on first use.
func (m *Manager) establishAI(ctx context.Context, p *HumanParticipant) error {
	aiRole, ok := p.role.Complement()
	if !ok {
		return apperrors.InvalidRole(string(p.role))
	}

	s := newSession(uuid.NewString())
	ai := &AIParticipant{
		id:          util.GenerateID(),
		role:        aiRole,
		assistantID: m.cfg.ChatModel,
	}
	p.status = model.StatusEstablished
	s.participants = []Participant{p, ai}
	s.patientID = p.targetPatientID

	m.createRecord(s, p, ai)
	m.install(s)
	go m.runDispatcher(s)

	log.Info().
		Str("sessionId", s.ID).
		Str("participantId", p.id).
		Str("aiRole", string(aiRole)).
		Msg("AI pair established")

	m.send(ctx, p.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	return nil
}

// startObserverSession sets up two AI counterparts and an autonomous
// conversation loop the observer watches and steers.
func (m *Manager) startObserverSession(ctx context.Context, obs *HumanParticipant) error {
	s := newSession(uuid.NewString())
	interviewer := &AIParticipant{
		id:          util.GenerateID(),
		role:        model.RoleInterviewer,
		assistantID: m.cfg.ChatModel,
	}
	interviewee := &AIParticipant{
		id:          util.GenerateID(),
		role:        model.RoleInterviewee,
		assistantID: m.cfg.ChatModel,
	}
	obs.status = model.StatusEstablished
	s.participants = []Participant{obs, interviewer, interviewee}
	s.patientID = obs.targetPatientID

	opening := m.cfg.InterviewerOpening
	s.transcript = append(s.transcript,
		model.Entry{Role: model.RoleInterviewer, Kind: model.SenderSystem, Text: m.promptFor(model.RoleInterviewer)},
		model.Entry{Role: model.RoleInterviewee, Kind: model.SenderSystem, Text: m.promptFor(model.RoleInterviewee)},
		model.Entry{Role: model.RoleInterviewer, Kind: model.SenderAssistant, Text: opening},
	)

	m.createRecord(s, obs, interviewer)
	m.install(s)

	ctxLog, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	persist("append log", s.ID, func() error {
		return m.store.AppendLog(ctxLog, model.AppendChatLogParams{
			SessionID:   s.ID,
			SpeakerName: interviewer.Name(),
			Role:        model.RoleInterviewer,
			SenderKind:  model.SenderAssistant,
			Message:     opening,
		})
	})

	s.loop = NewConversationLoop(m, s, obs, interviewer, interviewee)

	log.Info().
		Str("sessionId", s.ID).
		Str("participantId", obs.id).
		Msg("observer session established")

	m.send(ctx, obs.conn, model.EventEstablished, model.EstablishedEvent{SessionID: s.ID})
	m.send(ctx, obs.conn, model.EventMessageForwarded, model.MessageForwardedEvent{
		SessionID: s.ID,
		Text:      opening,
		Role:      model.RoleInterviewer,
	})

	s.loop.Start()
	return nil
}

// install registers a session in the lookup maps. Caller holds m.mu.
func (m *Manager) install(s *Session) {
	m.sessions[s.ID] = s
	for _, p := range s.participants {
		m.byParticipant[p.ID()] = s.ID
	}
	audit.Log(context.Background(), audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: s.ID,
		Details:   map[string]interface{}{"participants": len(s.participants)},
	})
}

func (m *Manager) createRecord(s *Session, owner *HumanParticipant, ai *AIParticipant) {
	params := model.CreateSessionParams{
		ID:       s.ID,
		UserName: owner.name,
		UserRole: owner.role,
	}
	if s.patientID != "" {
		params.PatientID = &s.patientID
	}
	if ai != nil {
		params.AssistantID = &ai.assistantID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	persist("create session record", s.ID, func() error {
		return m.store.CreateSession(ctx, params)
	})
}

func (m *Manager) promptFor(role model.Role) string {
	if role == model.RoleInterviewer {
		return m.cfg.InterviewerPrompt
	}
	return m.cfg.IntervieweePrompt
}
