package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pensim/interview-server-go/internal/database"
	"github.com/pensim/interview-server-go/internal/model"
)

// Store bundles the session and chat log repositories behind the single
// persistence surface the session layer consumes.
type Store struct {
	db       *database.DB
	sessions SessionRepository
	chatLogs ChatLogRepository
}

func NewStore(db *database.DB) *Store {
	return &Store{
		db:       db,
		sessions: NewSessionRepository(db.DB),
		chatLogs: NewChatLogRepository(db.DB),
	}
}

func (s *Store) CreateSession(ctx context.Context, params model.CreateSessionParams) error {
	_, err := s.sessions.Create(ctx, params)
	return err
}

func (s *Store) AppendLog(ctx context.Context, params model.AppendChatLogParams) error {
	_, err := s.chatLogs.Append(ctx, params)
	return err
}

func (s *Store) SaveThread(ctx context.Context, sessionID, assistantID, threadID string) error {
	return s.sessions.SaveThread(ctx, sessionID, assistantID, threadID)
}

func (s *Store) SaveFinalTranscript(ctx context.Context, sessionID string, transcript json.RawMessage) error {
	return s.sessions.SaveFinalTranscript(ctx, sessionID, transcript)
}

func (s *Store) MarkCompleted(ctx context.Context, sessionID string) error {
	return s.sessions.MarkCompleted(ctx, sessionID)
}

func (s *Store) LoadActiveSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	return s.sessions.FindActiveByID(ctx, sessionID)
}

func (s *Store) LoadHistory(ctx context.Context, sessionID string) ([]model.ChatLogEntry, error) {
	return s.chatLogs.ListBySessionID(ctx, sessionID)
}

// DeleteCompletedBefore purges completed sessions past retention alongside
// their chat logs. One transaction, logs first, so a failure never leaves a
// session row without its history.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)
		ids, err := sessions.CompletedIDsBefore(ctx, cutoff)
		if err != nil || len(ids) == 0 {
			return err
		}
		if _, err := s.chatLogs.WithTx(tx).DeleteBySessionIDs(ctx, ids); err != nil {
			return err
		}
		purged, err = sessions.DeleteByIDs(ctx, ids)
		return err
	})
	return purged, err
}
