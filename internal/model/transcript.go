package model

// Entry is a single transcript line. Entries are immutable once appended;
// slice position is the only ordering.
type Entry struct {
	Role Role       `json:"role"`
	Kind SenderKind `json:"kind"`
	Text string     `json:"text"`
}
