package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pensim/interview-server-go/internal/model"
)

type ChatLogRepository interface {
	Append(ctx context.Context, params model.AppendChatLogParams) (*model.ChatLogEntry, error)
	// ListBySessionID returns entries in append order.
	ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatLogEntry, error)
	DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error)
	WithTx(tx *sqlx.Tx) ChatLogRepository
}

type chatLogRepo struct {
	db DBTX
}

func NewChatLogRepository(db *sqlx.DB) ChatLogRepository {
	return &chatLogRepo{db: db}
}

func (r *chatLogRepo) WithTx(tx *sqlx.Tx) ChatLogRepository {
	return &chatLogRepo{db: tx}
}

func (r *chatLogRepo) Append(ctx context.Context, params model.AppendChatLogParams) (*model.ChatLogEntry, error) {
	var entry model.ChatLogEntry
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO chat_logs (session_id, speaker_name, role, sender_kind, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.SessionID, params.SpeakerName, params.Role, params.SenderKind, params.Message)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *chatLogRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatLogEntry, error) {
	var entries []model.ChatLogEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM chat_logs
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *chatLogRepo) DeleteBySessionIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM chat_logs WHERE session_id IN (?)`, sessionIDs)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
