package handler

import (
	"context"

	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/service"
)

// SessionManager is the slice of the session layer the HTTP surface needs.
type SessionManager interface {
	Register(role model.Role, name, targetPatientID, resumeSessionID string) (string, error)
	Connect(ctx context.Context, participantID string, conn service.Conn) error
	Disconnect(participantID string)
	Submit(ctx context.Context, participantID string, env model.EnvelopeIn) error
}
