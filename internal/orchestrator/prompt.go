package orchestrator

import (
	"fmt"
	"strings"

	"memoryengine/internal/retrieve"
)

// promptTemplate holds the fixed sections of the system prompt. It is kept
// as a plain format string rather than text/template: the insertion points
// are few, fixed, and known at compile time.
const promptTemplate = `You are a conversational assistant on turn %d of an ongoing conversation.

%s%s`

const memoryHeaderFmt = "You recall %d relevant memories about this user:\n%s\n"

const (
	directiveSchedule      = "The user is asking about scheduling; prioritize commitments and calendar-like facts.\n"
	directiveComprehensive = "The user wants a thorough, detailed answer.\n"
	directiveReturning     = "This is the first message of a returning user's new conversation; greet them naturally using what you recall, without listing memories verbatim.\n"
)

// composeSystemPrompt builds the system prompt for one turn: the fixed
// preamble, an optional memory section (omitted entirely under silence
// mode), and additive directives for schedule/comprehensive/returning-user
// cases.
func composeSystemPrompt(turnNumber int64, results []retrieve.Result, comprehensive, scheduleIntent, isFirstTurn bool) string {
	var directives strings.Builder
	if scheduleIntent {
		directives.WriteString(directiveSchedule)
	}
	if comprehensive {
		directives.WriteString(directiveComprehensive)
	}
	if isFirstTurn && len(results) > 0 {
		directives.WriteString(directiveReturning)
	}

	memorySection := ""
	if len(results) > 0 {
		var lines strings.Builder
		for _, r := range results {
			fmt.Fprintf(&lines, "- (%s) %s\n", r.Memory.Kind, r.Memory.Content)
		}
		memorySection = fmt.Sprintf(memoryHeaderFmt, len(results), lines.String())
	}

	return fmt.Sprintf(promptTemplate, turnNumber, memorySection, directives.String())
}
