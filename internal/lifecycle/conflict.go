package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// ConflictType classifies the kind of contradiction two memories exhibit.
type ConflictType string

const (
	ConflictLocationChange   ConflictType = "location_change"
	ConflictStatusChange     ConflictType = "status_change"
	ConflictPreferenceChange ConflictType = "preference_change"
	ConflictFactual          ConflictType = "factual_contradiction"
)

var conflictPatterns = map[string][]string{
	"location":     {"live in", "based in", "located in", "from", "moved to"},
	"job":          {"work at", "working at", "employed by", "job at", "position at"},
	"relationship": {"married to", "dating", "engaged to", "partner", "single"},
	"age":          {"years old", "age is", "age:"},
}

func hasPattern(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// ConflictResolver detects contradictions between a newly relevant memory
// and a user's existing memories, then adjudicates via an LLM call.
type ConflictResolver struct {
	llmClient llm.Provider
	model     string
}

// NewConflictResolver constructs a ConflictResolver.
func NewConflictResolver(llmClient llm.Provider, model string) *ConflictResolver {
	return &ConflictResolver{llmClient: llmClient, model: model}
}

// Check scans existing for a memory that conflicts with candidate by
// keyword-pattern category, then asks the LLM to adjudicate. Returns the
// conflicting memory and its ConflictType, or (nil, "") if none found.
func (r *ConflictResolver) Check(ctx context.Context, candidate *memory.Memory, existing []*memory.Memory) (*memory.Memory, ConflictType) {
	newLower := strings.ToLower(candidate.Content)

	for _, other := range existing {
		if other.ID == candidate.ID {
			continue
		}
		oldLower := strings.ToLower(other.Content)

		if hasPattern(newLower, conflictPatterns["location"]) && hasPattern(oldLower, conflictPatterns["location"]) {
			if r.areConflicting(ctx, candidate.Content, other.Content, "location") {
				return other, ConflictLocationChange
			}
		}
		if hasPattern(newLower, conflictPatterns["job"]) && hasPattern(oldLower, conflictPatterns["job"]) {
			if r.areConflicting(ctx, candidate.Content, other.Content, "job") {
				return other, ConflictStatusChange
			}
		}
		if hasPattern(newLower, conflictPatterns["relationship"]) && hasPattern(oldLower, conflictPatterns["relationship"]) {
			if r.areConflicting(ctx, candidate.Content, other.Content, "relationship") {
				return other, ConflictStatusChange
			}
		}
		if hasPattern(newLower, conflictPatterns["age"]) && hasPattern(oldLower, conflictPatterns["age"]) {
			if r.areConflicting(ctx, candidate.Content, other.Content, "age") {
				return other, ConflictFactual
			}
		}
		if candidate.Kind == memory.KindPreference && other.Kind == memory.KindPreference {
			if r.areConflicting(ctx, candidate.Content, other.Content, "preference") {
				return other, ConflictPreferenceChange
			}
		}
	}
	return nil, ""
}

func (r *ConflictResolver) areConflicting(ctx context.Context, a, b, category string) bool {
	log := observability.LoggerWithTrace(ctx)
	prompt := fmt.Sprintf(`Determine if these two statements about %s conflict:

Statement 1: %s
Statement 2: %s

Respond with exactly "true" or "false".`, category, a, b)

	reply, err := r.llmClient.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a conflict detection system. Determine if statements contradict."},
		{Role: "user", Content: prompt},
	}, r.model)
	if err != nil {
		log.Warn().Err(err).Msg("conflict_adjudication_failed_assuming_no_conflict")
		return false
	}
	return strings.Contains(strings.ToLower(reply), "true")
}

// Resolve applies the resolution strategy for a detected conflict, mutating
// both memories' Context maps. The caller persists both via store.Update.
func Resolve(newMemory, oldMemory *memory.Memory, conflictType ConflictType) string {
	now := time.Now().UTC().Format(time.RFC3339)
	ensureContext(newMemory)
	ensureContext(oldMemory)

	switch conflictType {
	case ConflictLocationChange, ConflictStatusChange:
		oldMemory.ImportanceScore = 0.3
		oldMemory.ImportanceLevel = "low"
		oldMemory.Context["superseded_by"] = newMemory.ID
		oldMemory.Context["superseded_at"] = now
		oldMemory.Context["resolution"] = "outdated_information"
		newMemory.Context["supersedes"] = oldMemory.ID
		newMemory.Context["previous_value"] = oldMemory.Content
		return "superseded"

	case ConflictPreferenceChange:
		oldMemory.Context["evolved_to"] = newMemory.ID
		newMemory.Context["evolved_from"] = oldMemory.ID
		return "evolution"

	case ConflictFactual:
		oldMemory.Context["potential_conflict"] = newMemory.ID
		newMemory.Context["potential_conflict"] = oldMemory.ID
		return "flagged_for_review"

	default:
		return "resolution_failed"
	}
}

func ensureContext(m *memory.Memory) {
	if m.Context == nil {
		m.Context = map[string]string{}
	}
}
