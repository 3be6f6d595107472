package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pensim/interview-server-go/internal/model"
)

type SessionRepository interface {
	// FindActiveByID only matches records still marked active; completed
	// sessions cannot be rehydrated.
	FindActiveByID(ctx context.Context, id string) (*model.SessionRecord, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.SessionRecord, error)
	SaveThread(ctx context.Context, id string, assistantID, threadID string) error
	SaveFinalTranscript(ctx context.Context, id string, transcript json.RawMessage) error
	MarkCompleted(ctx context.Context, id string) error
	CompletedIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindActiveByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.db.GetContext(ctx, &record, `
		SELECT * FROM interview_sessions
		WHERE id = $1 AND status = 'active'
	`, id)
	return HandleNotFound(&record, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO interview_sessions (id, user_name, user_role, patient_id, assistant_id, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING *
	`, params.ID, params.UserName, params.UserRole, params.PatientID, params.AssistantID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *sessionRepo) SaveThread(ctx context.Context, id string, assistantID, threadID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE interview_sessions SET
			assistant_id = $2,
			thread_id = $3
		WHERE id = $1
	`, id, assistantID, threadID)
	return err
}

func (r *sessionRepo) SaveFinalTranscript(ctx context.Context, id string, transcript json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE interview_sessions SET
			final_transcript = $2
		WHERE id = $1
	`, id, transcript)
	return err
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE interview_sessions SET
			status = 'completed',
			completed_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, time.Now())
	return err
}

func (r *sessionRepo) CompletedIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM interview_sessions
		WHERE status = 'completed' AND completed_at < $1
	`, cutoff)
	return ids, err
}

func (r *sessionRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM interview_sessions WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
