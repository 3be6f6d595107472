package util

import (
	"regexp"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

var idRegex = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsValidParticipantID checks the hex SHA-1 shape produced by GenerateID.
func IsValidParticipantID(s string) bool {
	return idRegex.MatchString(s)
}
