package inference

import (
	"context"
	"errors"
)

// Intent is a structured out-of-band signal returned by the backend instead
// of, or alongside, conversational text.
type Intent string

const (
	// IntentEndInterview means the model judged the interview complete and
	// wants to hand over to debriefing.
	IntentEndInterview Intent = "end_interview"
)

// Handle references one conversation thread held by the backend.
type Handle string

// Reply is the outcome of a single exchange. Exactly one of Text or Intent
// is expected to be meaningful; an intent never carries transcript text.
type Reply struct {
	Text   string
	Intent Intent
}

// ErrHandleNotFound is returned when the backend no longer knows the
// conversation handle. Callers may recover once by recreating the handle and
// re-seeding context.
var ErrHandleNotFound = errors.New("inference: conversation handle not found")

// Client is the external inference collaborator. Cancel must be safe to call
// on an already finished conversation.
type Client interface {
	CreateConversation(ctx context.Context) (Handle, error)
	// Prime injects system context (persona, instructions) into the
	// conversation without producing a reply.
	Prime(ctx context.Context, h Handle, chunks []string) error
	Send(ctx context.Context, h Handle, text string, allowed []Intent) (Reply, error)
	Cancel(ctx context.Context, h Handle) error
	Delete(ctx context.Context, h Handle) error
}

// Debriefer turns a finished transcript into a skill debrief. The call is
// opaque to the session layer and may fail or time out.
type Debriefer interface {
	GenerateDebrief(ctx context.Context, transcript string) (string, error)
}
