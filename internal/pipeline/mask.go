package pipeline

import (
	"sort"
	"strings"

	"github.com/voice-redaction-lab/internal/transcribe"
)

const redactedToken = "[REDACTED]"

// MaskTranscript replaces every occurrence of each entity's content with
// [REDACTED], latest entities first. Matching is by plain substring, so an
// entity's text is also masked where it appears outside the detected span.
func MaskTranscript(transcript string, entities []transcribe.Entity) string {
	ordered := make([]transcribe.Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })
	for _, e := range ordered {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		transcript = strings.ReplaceAll(transcript, e.Content, redactedToken)
	}
	return transcript
}
