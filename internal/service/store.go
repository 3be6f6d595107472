package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pensim/interview-server-go/internal/model"
)

// Store is the persistence collaborator. Writes issued mid-conversation are
// fire-and-forget: a failure is logged and never aborts the in-memory
// conversation.
type Store interface {
	CreateSession(ctx context.Context, params model.CreateSessionParams) error
	AppendLog(ctx context.Context, params model.AppendChatLogParams) error
	SaveThread(ctx context.Context, sessionID, assistantID, threadID string) error
	SaveFinalTranscript(ctx context.Context, sessionID string, transcript json.RawMessage) error
	MarkCompleted(ctx context.Context, sessionID string) error
	LoadActiveSession(ctx context.Context, sessionID string) (*model.SessionRecord, error)
	LoadHistory(ctx context.Context, sessionID string) ([]model.ChatLogEntry, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// persist runs a store write and swallows the error with a log line.
func persist(what, sessionID string, fn func() error) {
	if err := fn(); err != nil {
		log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("op", what).
			Msg("persistence failure ignored")
	}
}
