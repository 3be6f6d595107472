package service

import (
	"regexp"
	"strings"
)

var (
	// Annotation markers the inference backend embeds in replies,
	// e.g. citation brackets of the form 【12:3†source】.
	citationPattern = regexp.MustCompile(`【[^】]*】`)

	// Role labels models sometimes prepend despite instructions. Labels can
	// stack ("Interviewer: Interviewee: ..."), so the strip runs to a
	// fixpoint.
	roleLabelPattern = regexp.MustCompile(`(?i)^\s*(interviewer|interviewee|assistant|system)\s*[:：]\s*`)

	// Stage directions wrapped in asterisks, like *nods slowly*.
	stageDirectionPattern = regexp.MustCompile(`\*[^*\n]{1,80}\*`)

	whitespacePattern = regexp.MustCompile(`[ \t]{2,}`)

	endSignalPattern = regexp.MustCompile(`(?i)\bend_interview\b`)
)

// Sanitize strips backend artifacts from a model reply. It is idempotent:
// sanitizing already-clean text returns it unchanged.
func Sanitize(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = stageDirectionPattern.ReplaceAllString(text, "")
	text = endSignalPattern.ReplaceAllString(text, "")
	for {
		stripped := roleLabelPattern.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// containsEndSignal catches the degraded case where the model writes the
// end-of-interview marker into its prose instead of signaling it properly.
func containsEndSignal(text string) bool {
	return endSignalPattern.MatchString(text)
}
