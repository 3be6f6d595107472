package service

import (
	"context"
	"time"

	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
)

// Conn is a participant's live downstream connection. Satisfied by
// sse.ParticipantConn; mocked in tests.
type Conn interface {
	Send(ctx context.Context, eventType string, payload any) error
	Close()
}

// Participant is the common surface of both variants. A participant either
// has a live connection (human) or an inference handle (AI), never both.
type Participant interface {
	ID() string
	Name() string
	Role() model.Role
	Status() model.ParticipantStatus
}

// HumanParticipant is an identity registered over HTTP. Its connection
// reference is replaced on reconnect; the identity itself survives.
type HumanParticipant struct {
	id              string
	name            string
	role            model.Role
	status          model.ParticipantStatus
	conn            Conn
	targetPatientID string
	resumeSessionID string
	registeredAt    time.Time
	disconnectedAt  time.Time // zero while a connection is bound
}

func (p *HumanParticipant) ID() string { return p.id }
func (p *HumanParticipant) Name() string { return p.name }
func (p *HumanParticipant) Role() model.Role { return p.role }
func (p *HumanParticipant) Status() model.ParticipantStatus { return p.status }

// AIParticipant is a synthesized counterpart bound to a configured backend
// identity. Its conversation handle is created lazily on first use and
// released when the session ends.
type AIParticipant struct {
	id          string
	role        model.Role
	assistantID string
	handle      inference.Handle
}

func (p *AIParticipant) ID() string { return p.id }
func (p *AIParticipant) Name() string { return "AI" }
func (p *AIParticipant) Role() model.Role { return p.role }
func (p *AIParticipant) Status() model.ParticipantStatus { return model.StatusEstablished }
