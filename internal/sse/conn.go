package sse

import (
	"context"
	"encoding/json"
)

// Conn is a participant's live downstream connection. The server side of a
// conversation only ever needs to push typed events and to drop the link.
type Conn interface {
	Send(ctx context.Context, eventType string, payload any) error
	Close()
}

// ParticipantConn sends events to one participant through the broker. The
// actual transport is the SSE stream the participant holds open; rebinding a
// reconnected participant is just constructing a new ParticipantConn.
type ParticipantConn struct {
	broker        *Broker
	participantID string
}

func NewParticipantConn(broker *Broker, participantID string) *ParticipantConn {
	return &ParticipantConn{broker: broker, participantID: participantID}
}

func (c *ParticipantConn) Send(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.broker.Publish(ctx, c.participantID, Event{Type: eventType, Data: data})
}

func (c *ParticipantConn) Close() {
	c.broker.Drop(c.participantID)
}
