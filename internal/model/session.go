package model

import (
	"encoding/json"
	"time"
)

// SessionRecord is the persisted counterpart of a live session. A record in
// status active can be rehydrated into memory after a server restart or a
// late reconnect.
type SessionRecord struct {
	ID              string           `db:"id" json:"id"`
	UserName        string           `db:"user_name" json:"userName"`
	UserRole        Role             `db:"user_role" json:"userRole"`
	PatientID       *string          `db:"patient_id" json:"patientId,omitempty"`
	AssistantID     *string          `db:"assistant_id" json:"assistantId,omitempty"`
	ThreadID        *string          `db:"thread_id" json:"threadId,omitempty"`
	Status          SessionStatus    `db:"status" json:"status"`
	FinalTranscript *json.RawMessage `db:"final_transcript" json:"-"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	CompletedAt     *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

type CreateSessionParams struct {
	ID          string
	UserName    string
	UserRole    Role
	PatientID   *string
	AssistantID *string
}
