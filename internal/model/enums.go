package model

// Role identifies which side of the interview a participant plays.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleInterviewee Role = "interviewee"
	RoleObserver    Role = "observer"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleInterviewer, RoleInterviewee, RoleObserver:
		return true
	}
	return false
}

// Complement returns the counterpart role for pairing.
// Observer has no complement: observer sessions are driven by two AI roles.
func (r Role) Complement() (Role, bool) {
	switch r {
	case RoleInterviewer:
		return RoleInterviewee, true
	case RoleInterviewee:
		return RoleInterviewer, true
	}
	return "", false
}

// ParticipantStatus is the registration lifecycle of a participant.
type ParticipantStatus string

const (
	StatusInitial     ParticipantStatus = "initial"
	StatusRegistered  ParticipantStatus = "registered"
	StatusPrepared    ParticipantStatus = "prepared"
	StatusEstablished ParticipantStatus = "established"
)

// SessionStatus is the lifecycle of a session record.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// SenderKind classifies the author of a transcript entry.
type SenderKind string

const (
	SenderSystem    SenderKind = "system"
	SenderUser      SenderKind = "user"
	SenderAssistant SenderKind = "assistant"
)
