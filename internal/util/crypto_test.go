package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	t.Run("produces 40 hex characters", func(t *testing.T) {
		id := GenerateID()
		assert.Len(t, id, 40)
		assert.True(t, IsValidParticipantID(id))
	})

	t.Run("generates unique ids", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := GenerateID()
			assert.False(t, seen[id], "duplicate id generated: %s", id)
			seen[id] = true
		}
	})
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("a3bb189e-8bf9-3888-9912-ace4e6543002"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
}

func TestIsValidParticipantID(t *testing.T) {
	assert.False(t, IsValidParticipantID(""))
	assert.False(t, IsValidParticipantID("xyz"))
	assert.False(t, IsValidParticipantID("A3BB189E"))
}
