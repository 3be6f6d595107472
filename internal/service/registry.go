package service

import (
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/util"
)

// Registry holds participants that are not yet inside a session. The
// in-session partition lives in the Manager's session lookup; keeping it out
// of the registry avoids tracking the same participant twice.
type Registry struct {
	waiting map[string]*HumanParticipant
	order   []string // registration order, the documented FIFO pairing policy
}

func NewRegistry() *Registry {
	return &Registry{
		waiting: make(map[string]*HumanParticipant),
	}
}

// Register always succeeds: ids are generated with a collision-resistant
// scheme, so there is no collision handling.
func (r *Registry) Register(role model.Role, name, targetPatientID, resumeSessionID string) *HumanParticipant {
	p := &HumanParticipant{
		id:              util.GenerateID(),
		name:            name,
		role:            role,
		status:          model.StatusRegistered,
		targetPatientID: targetPatientID,
		resumeSessionID: resumeSessionID,
		registeredAt:    time.Now(),
	}
	r.waiting[p.id] = p
	r.order = append(r.order, p.id)

	log.Info().
		Str("participantId", p.id).
		Str("role", string(role)).
		Str("name", name).
		Msg("participant registered")

	return p
}

func (r *Registry) Get(id string) *HumanParticipant {
	return r.waiting[id]
}

// Bind attaches a live connection, replacing any stale one, and moves the
// participant to Prepared.
func (r *Registry) Bind(id string, conn Conn) (*HumanParticipant, error) {
	p, ok := r.waiting[id]
	if !ok {
		return nil, apperrors.NotFound("Participant")
	}
	p.conn = conn
	p.status = model.StatusPrepared
	p.disconnectedAt = time.Time{}
	return p, nil
}

// Release removes the participant from the waiting partition. No-op if the
// participant already moved into a session.
func (r *Registry) Release(id string) {
	if _, ok := r.waiting[id]; !ok {
		return
	}
	delete(r.waiting, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// TakePeer returns and releases the earliest-registered waiting participant
// with the wanted role and a live connection. First registered wins; map
// iteration order is never relied on.
func (r *Registry) TakePeer(role model.Role) *HumanParticipant {
	for _, id := range r.order {
		p, ok := r.waiting[id]
		if !ok {
			continue
		}
		if p.role == role && p.status == model.StatusPrepared {
			r.Release(id)
			return p
		}
	}
	return nil
}

// ReleaseStale drops waiting registrations that never connected, or whose
// connection has been gone, for longer than ttl. Returns the number released.
func (r *Registry) ReleaseStale(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	var stale []string
	for id, p := range r.waiting {
		switch {
		case p.status == model.StatusRegistered && p.registeredAt.Before(cutoff):
			stale = append(stale, id)
		case !p.disconnectedAt.IsZero() && p.disconnectedAt.Before(cutoff):
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.Release(id)
	}
	return len(stale)
}

func (r *Registry) WaitingCount() int {
	return len(r.waiting)
}
