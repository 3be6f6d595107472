package model

import "time"

// ChatLogEntry is one appended row of the chat log, the append-only
// persistence behind the in-memory transcript.
type ChatLogEntry struct {
	ID          int64      `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"sessionId"`
	SpeakerName string     `db:"speaker_name" json:"speakerName"`
	Role        Role       `db:"role" json:"role"`
	SenderKind  SenderKind `db:"sender_kind" json:"senderKind"`
	Message     string     `db:"message" json:"message"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

type AppendChatLogParams struct {
	SessionID   string
	SpeakerName string
	Role        Role
	SenderKind  SenderKind
	Message     string
}
