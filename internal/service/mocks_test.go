package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pensim/interview-server-go/internal/config"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/model"
)

type recordedEvent struct {
	Type    string
	Payload any
}

type mockConn struct {
	mu     sync.Mutex
	events []recordedEvent
	closed bool
}

func (c *mockConn) Send(ctx context.Context, eventType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (c *mockConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (c *mockConn) eventsOf(eventType string) []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recordedEvent
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (c *mockConn) waitFor(t *testing.T, eventType string) recordedEvent {
	t.Helper()
	ev, ok := c.waitForN(eventType, 1)
	if !ok {
		t.Fatalf("timed out waiting for %s event", eventType)
	}
	return ev
}

// waitForN polls until at least n events of the given type arrived and
// returns the nth one.
func (c *mockConn) waitForN(eventType string, n int) (recordedEvent, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := c.eventsOf(eventType); len(evs) >= n {
			return evs[n-1], true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return recordedEvent{}, false
}

type mockStore struct {
	mu        sync.Mutex
	created   []model.CreateSessionParams
	logs      []model.AppendChatLogParams
	threads   map[string]string
	finals    map[string]json.RawMessage
	completed []string

	record  *model.SessionRecord
	history []model.ChatLogEntry
}

func newMockStore() *mockStore {
	return &mockStore{
		threads: make(map[string]string),
		finals:  make(map[string]json.RawMessage),
	}
}

func (s *mockStore) CreateSession(ctx context.Context, params model.CreateSessionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, params)
	return nil
}

func (s *mockStore) AppendLog(ctx context.Context, params model.AppendChatLogParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, params)
	return nil
}

func (s *mockStore) SaveThread(ctx context.Context, sessionID, assistantID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[sessionID] = threadID
	return nil
}

func (s *mockStore) SaveFinalTranscript(ctx context.Context, sessionID string, transcript json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals[sessionID] = transcript
	return nil
}

func (s *mockStore) MarkCompleted(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, sessionID)
	return nil
}

func (s *mockStore) LoadActiveSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record != nil && s.record.ID == sessionID {
		return s.record, nil
	}
	return nil, nil
}

func (s *mockStore) LoadHistory(ctx context.Context, sessionID string) ([]model.ChatLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history, nil
}

func (s *mockStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *mockStore) completedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *mockStore) loggedMessages() []model.AppendChatLogParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AppendChatLogParams(nil), s.logs...)
}

// scriptedAI replays queued replies in order, falling back to a default.
type scriptedAI struct {
	mu           sync.Mutex
	replies      []inference.Reply
	defaultReply inference.Reply
	staleSends   int // initial Sends that fail with ErrHandleNotFound
	failSends    int // initial Sends that fail with a generic backend error
	blockOnSend  bool

	created int
	handles map[inference.Handle]bool
	primed  map[inference.Handle][]string
	deleted []inference.Handle

	debrief    string
	debriefErr error
}

func newScriptedAI(replies ...inference.Reply) *scriptedAI {
	return &scriptedAI{
		replies:      replies,
		defaultReply: inference.Reply{Text: "Could you tell me more about that?"},
		handles:      make(map[inference.Handle]bool),
		primed:       make(map[inference.Handle][]string),
		debrief:      "debrief summary",
	}
}

func (a *scriptedAI) CreateConversation(ctx context.Context) (inference.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	h := inference.Handle(fmt.Sprintf("handle-%d", a.created))
	a.handles[h] = true
	return h, nil
}

func (a *scriptedAI) Prime(ctx context.Context, h inference.Handle, chunks []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.handles[h] {
		return inference.ErrHandleNotFound
	}
	a.primed[h] = append(a.primed[h], chunks...)
	return nil
}

func (a *scriptedAI) Send(ctx context.Context, h inference.Handle, text string, allowed []inference.Intent) (inference.Reply, error) {
	a.mu.Lock()
	block := a.blockOnSend
	if !block {
		if a.staleSends > 0 {
			a.staleSends--
			a.mu.Unlock()
			return inference.Reply{}, inference.ErrHandleNotFound
		}
		if a.failSends > 0 {
			a.failSends--
			a.mu.Unlock()
			return inference.Reply{}, errors.New("backend unavailable")
		}
		if !a.handles[h] {
			a.mu.Unlock()
			return inference.Reply{}, inference.ErrHandleNotFound
		}
		if len(a.replies) > 0 {
			reply := a.replies[0]
			a.replies = a.replies[1:]
			a.mu.Unlock()
			return reply, nil
		}
		reply := a.defaultReply
		a.mu.Unlock()
		return reply, nil
	}
	a.mu.Unlock()

	<-ctx.Done()
	return inference.Reply{}, ctx.Err()
}

func (a *scriptedAI) Cancel(ctx context.Context, h inference.Handle) error { return nil }

func (a *scriptedAI) Delete(ctx context.Context, h inference.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, h)
	a.deleted = append(a.deleted, h)
	return nil
}

func (a *scriptedAI) GenerateDebrief(ctx context.Context, transcript string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.debrief, a.debriefErr
}

func (a *scriptedAI) createdCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.created
}

func (a *scriptedAI) primedChunks(h inference.Handle) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.primed[h]...)
}

func (a *scriptedAI) deletedHandles() []inference.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]inference.Handle(nil), a.deleted...)
}

func testConfig() *config.Config {
	return &config.Config{
		ChatModel:          "gpt-4o-mini",
		DebriefModel:       "gpt-4o-mini",
		IntervieweePrompt:  "You are a patient describing a recent illness.",
		InterviewerPrompt:  "You are a health worker conducting an interview.",
		InterviewerOpening: "Hello, could you tell me when you first felt unwell?",
		TurnIntervalMS:     1,
		SessionTTLSeconds:  900,
		RetentionDays:      30,
	}
}

func newTestManager(store *mockStore, ai *scriptedAI) *Manager {
	return NewManager(testConfig(), store, ai, ai)
}
