package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips citation brackets",
			in:   "I ate shellfish that evening.【4:0†source】",
			want: "I ate shellfish that evening.",
		},
		{
			name: "strips leading role label",
			in:   "Interviewee: It started on Monday.",
			want: "It started on Monday.",
		},
		{
			name: "strips stacked role labels in one pass",
			in:   "Interviewer: Interviewee: It started on Monday.",
			want: "It started on Monday.",
		},
		{
			name: "strips a label hidden behind a stage direction",
			in:   "*clears throat* Interviewee: It started on Monday.",
			want: "It started on Monday.",
		},
		{
			name: "strips an indented role label",
			in:   "  Interviewee: It started on Monday.",
			want: "It started on Monday.",
		},
		{
			name: "strips stage directions",
			in:   "*nods slowly* I think it was the water.",
			want: "I think it was the water.",
		},
		{
			name: "strips the end marker from prose",
			in:   "Thank you for your time. end_interview",
			want: "Thank you for your time.",
		},
		{
			name: "collapses repeated spaces",
			in:   "It  was   a Tuesday.",
			want: "It was a Tuesday.",
		},
		{
			name: "clean text passes through",
			in:   "I developed a fever two days after the picnic.",
			want: "I developed a fever two days after the picnic.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		for _, tt := range tests {
			once := Sanitize(tt.in)
			assert.Equal(t, once, Sanitize(once))
		}
	})
}

func TestContainsEndSignal(t *testing.T) {
	assert.True(t, containsEndSignal("That covers everything. end_interview"))
	assert.True(t, containsEndSignal("END_INTERVIEW"))
	assert.False(t, containsEndSignal("The interview ended well."))
	assert.False(t, containsEndSignal("We should end interviews on time."))
}
