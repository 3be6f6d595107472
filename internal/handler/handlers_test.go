package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/model"
	"github.com/pensim/interview-server-go/internal/service"
)

type stubManager struct {
	registerID  string
	registerErr error
	submitErr   error

	registeredRole model.Role
	registeredName string
	submittedID    string
	submitted      *model.EnvelopeIn
}

func (s *stubManager) Register(role model.Role, name, targetPatientID, resumeSessionID string) (string, error) {
	s.registeredRole = role
	s.registeredName = name
	return s.registerID, s.registerErr
}

func (s *stubManager) Connect(ctx context.Context, participantID string, conn service.Conn) error {
	return nil
}

func (s *stubManager) Disconnect(participantID string) {}

func (s *stubManager) Submit(ctx context.Context, participantID string, env model.EnvelopeIn) error {
	s.submittedID = participantID
	s.submitted = &env
	return s.submitErr
}

const testParticipantID = "0123456789abcdef0123456789abcdef01234567"

func TestRegisterHandler(t *testing.T) {
	t.Run("creates a participant", func(t *testing.T) {
		mgr := &stubManager{registerID: testParticipantID}
		h := NewRegisterHandler(mgr)

		body := `{"role":"interviewer","name":"Kim"}`
		req := httptest.NewRequest("POST", "/v1/register", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp registerResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, testParticipantID, resp.ParticipantID)
		assert.Equal(t, model.RoleInterviewer, mgr.registeredRole)
		assert.Equal(t, "Kim", mgr.registeredName)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		h := NewRegisterHandler(&stubManager{})

		body := `{"role":"butcher","name":"Kim"}`
		req := httptest.NewRequest("POST", "/v1/register", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeInvalidRole))
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		h := NewRegisterHandler(&stubManager{})

		req := httptest.NewRequest("POST", "/v1/register", bytes.NewReader([]byte("{nope")))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects observer resume", func(t *testing.T) {
		h := NewRegisterHandler(&stubManager{})

		body := `{"role":"observer","resumeSessionId":"abc"}`
		req := httptest.NewRequest("POST", "/v1/register", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed resume id", func(t *testing.T) {
		h := NewRegisterHandler(&stubManager{})

		body := `{"role":"interviewer","resumeSessionId":"not-a-uuid"}`
		req := httptest.NewRequest("POST", "/v1/register", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func newMessagesRequest(participantID, body string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/participants/"+participantID+"/messages", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("participantID", participantID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestMessagesHandler(t *testing.T) {
	t.Run("accepts a message envelope", func(t *testing.T) {
		mgr := &stubManager{}
		h := NewMessagesHandler(mgr)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newMessagesRequest(testParticipantID, `{"msgType":"MessageSubmitted","text":"hello"}`))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, testParticipantID, mgr.submittedID)
		require.NotNil(t, mgr.submitted)
		assert.Equal(t, model.MessageSubmitted, mgr.submitted.MsgType)
		assert.Equal(t, "hello", mgr.submitted.Text)
	})

	t.Run("rejects malformed participant id", func(t *testing.T) {
		h := NewMessagesHandler(&stubManager{})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newMessagesRequest("not-an-id", `{"msgType":"MessageSubmitted"}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("requires msgType", func(t *testing.T) {
		h := NewMessagesHandler(&stubManager{})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newMessagesRequest(testParticipantID, `{"text":"hello"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps waiting participant to conflict", func(t *testing.T) {
		mgr := &stubManager{submitErr: apperrors.PeerUnavailable()}
		h := NewMessagesHandler(mgr)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newMessagesRequest(testParticipantID, `{"msgType":"MessageSubmitted","text":"hi"}`))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
