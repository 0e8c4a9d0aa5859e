package retrieve

import "strings"

// Intent is the coarse query category that selects a scoring weight profile.
type Intent string

const (
	IntentSchedule Intent = "schedule"
	IntentPersonal Intent = "personal"
	IntentGeneral  Intent = "general"
)

// Classifier assigns an Intent to free-text query input. Kept pluggable so a
// learned classifier can replace the keyword heuristic without touching the
// retriever or orchestrator.
type Classifier interface {
	Classify(text string) Intent
}

var scheduleKeywords = []string{"schedule", "meeting", "appointment", "call", "calendar", "remind", "available", "availability", "when"}
var personalKeywords = []string{"i like", "i prefer", "my favorite", "about me", "my preference", "remember that i"}
var comprehensiveKeywords = []string{"explain", "everything about", "comprehensive", "in detail", "how does", "tell me all"}

// KeywordClassifier is the default heuristic Classifier: a keyword bag per
// intent, first match wins, defaulting to general.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(text string) Intent {
	lower := strings.ToLower(text)
	for _, kw := range scheduleKeywords {
		if strings.Contains(lower, kw) {
			return IntentSchedule
		}
	}
	for _, kw := range personalKeywords {
		if strings.Contains(lower, kw) {
			return IntentPersonal
		}
	}
	return IntentGeneral
}

// IsComprehensive reports whether text signals an explicitly broad,
// knowledge-seeking query that should override silence mode.
func IsComprehensive(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range comprehensiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
