package model

// Client-to-server message types carried in an EnvelopeIn.
type MessageType string

const (
	MessageSubmitted            MessageType = "MessageSubmitted"
	EndSessionRequest           MessageType = "EndSessionRequest"
	StopConversationRequest     MessageType = "StopConversationRequest"
	ContinueConversationRequest MessageType = "ContinueConversationRequest"
	DebriefingRequest           MessageType = "DebriefingRequest"
)

// EnvelopeIn is the body of an inbound client event POST.
type EnvelopeIn struct {
	MsgType MessageType `json:"msgType"`
	Text    string      `json:"text,omitempty"`
}

// Server-to-client SSE event types.
const (
	EventPrepared                     = "Prepared"
	EventEstablished                  = "Established"
	EventMessageForwarded             = "MessageForwarded"
	EventMessageRejected              = "MessageRejected"
	EventSessionTerminated            = "SessionTerminated"
	EventToolCallDetected             = "ToolCallDetected"
	EventConversationContinueAccepted = "ConversationContinueAccepted"
	EventDebriefingResponse           = "DebriefingResponse"
)

type EstablishedEvent struct {
	SessionID string `json:"sessionId"`
}

type MessageForwardedEvent struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Role      Role   `json:"role"`
}

type MessageRejectedEvent struct {
	Reason string `json:"reason"`
}

type SessionTerminatedEvent struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type ToolCallDetectedEvent struct {
	SessionID string `json:"sessionId"`
}

type DebriefingResponseEvent struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}
