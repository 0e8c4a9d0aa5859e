// Package extract turns a completed conversation turn into zero or more
// candidate long-term memories, by prompting an LLM for structured JSON and
// parsing its response defensively.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

const maxSnippetLen = 500

// Candidate is a proposed memory pending canonicalization/dedup/create.
type Candidate struct {
	Kind       memory.Kind
	Content    string
	Confidence float64
	Tags       []string
	Entities   []string
	Context    map[string]string
}

const systemPrompt = `You extract durable facts worth remembering from a single chat exchange.
Respond with a JSON array of objects, each with fields:
  type: one of "preference", "fact", "commitment", "instruction", "entity"
  content: a concise, self-contained statement
  confidence: a number from 0 to 1, calibrated, not a default
  tags: an array of short keyword strings
  entities: an array of named entities mentioned

Skip filler, greetings, and questions. Only extract what the user or
assistant stated as true, committed to, or instructed. Typically 0 to 3
memories per exchange. Respond with the JSON array only.`

// Extractor prompts an llm.Provider to extract memory candidates from a turn
// and post-processes the result.
type Extractor struct {
	provider            llm.Provider
	model               string
	confidenceThreshold float64
}

// New constructs an Extractor. confidenceThreshold drops any candidate
// scored below it (default 0.7).
func New(provider llm.Provider, model string, confidenceThreshold float64) *Extractor {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.7
	}
	return &Extractor{provider: provider, model: model, confidenceThreshold: confidenceThreshold}
}

// Extract returns 0 or more memory candidates for a (user_msg, assistant_msg)
// exchange. It never returns an error to the caller: an LLM failure or
// unparseable response yields an empty slice, since a missed memory must
// never block the turn.
func (e *Extractor) Extract(ctx context.Context, userMsg, assistantMsg string) []Candidate {
	log := observability.LoggerWithTrace(ctx)

	prompt := fmt.Sprintf("User: %s\nAssistant: %s", userMsg, assistantMsg)
	reply, err := e.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, e.model)
	if err != nil {
		log.Warn().Err(err).Msg("extract_llm_call_failed")
		return nil
	}

	raw, err := parseCandidates(reply)
	if err != nil {
		log.Warn().Err(err).Str("reply", reply).Msg("extract_parse_failed")
		return nil
	}

	now := time.Now().UTC()
	userSnippet := truncate(userMsg, maxSnippetLen)
	assistantSnippet := truncate(assistantMsg, maxSnippetLen)

	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < e.confidenceThreshold {
			continue
		}
		kind := memory.Kind(strings.ToLower(strings.TrimSpace(r.Type)))
		if !validKind(kind) {
			continue
		}
		content, scheduledAt := ParseTemporalReference(r.Content, now)

		ctxMap := map[string]string{
			"user_snippet":      userSnippet,
			"assistant_snippet": assistantSnippet,
			"extracted_at":      now.Format(time.RFC3339),
		}
		if scheduledAt != nil {
			ctxMap["scheduled_date"] = scheduledAt.Format(time.RFC3339)
		}

		out = append(out, Candidate{
			Kind:       kind,
			Content:    content,
			Confidence: r.Confidence,
			Tags:       r.Tags,
			Entities:   r.Entities,
			Context:    ctxMap,
		})
	}
	return out
}

func validKind(k memory.Kind) bool {
	switch k {
	case memory.KindPreference, memory.KindFact, memory.KindCommitment, memory.KindInstruction, memory.KindEntity:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type rawCandidate struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Entities   []string `json:"entities"`
}

type wrappedCandidates struct {
	Memories []rawCandidate `json:"memories"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseCandidates tolerantly unmarshals the LLM reply: a bare JSON array, a
// fenced ```json code block, or an object wrapping the array in "memories".
func parseCandidates(reply string) ([]rawCandidate, error) {
	body := strings.TrimSpace(reply)
	if m := fencedBlockRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}

	var arr []rawCandidate
	if err := json.Unmarshal([]byte(body), &arr); err == nil {
		return arr, nil
	}

	var wrapped wrappedCandidates
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil && wrapped.Memories != nil {
		return wrapped.Memories, nil
	}

	return nil, fmt.Errorf("unrecognized extraction response shape")
}
