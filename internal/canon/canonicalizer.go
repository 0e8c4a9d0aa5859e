// Package canon resolves newly extracted memories against existing ones that
// describe the same underlying preference, keeping a single up-to-date
// record instead of accumulating contradictory duplicates.
package canon

import (
	"context"
	"strconv"
	"strings"

	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// keyPattern maps a canonical key to the substrings (matched against
// lower-cased memory content) that identify it. Order matters: the first
// matching pattern wins, mirroring the original implementation this is
// grounded on.
type keyPattern struct {
	key      string
	patterns []string
}

var canonicalKeys = []keyPattern{
	{"call_time", []string{"call", "phone", "meeting time"}},
	{"contact_preference", []string{"contact", "reach", "communicate"}},
	{"response_style", []string{"response", "answer", "reply style"}},
	{"language", []string{"language", "speak", "communicate in"}},
	{"meeting_time", []string{"meeting", "schedule", "appointment time"}},
	{"timezone", []string{"timezone", "time zone"}},
	{"availability", []string{"available", "free", "open"}},
	{"diet", []string{"diet", "eat", "food"}},
	{"favorite_food", []string{"favorite food", "likes to eat"}},
	{"allergies", []string{"allergic", "allergy", "cannot eat"}},
	{"work_hours", []string{"work hours", "working time"}},
	{"notification_preference", []string{"notification", "alert", "reminder"}},
	{"formality", []string{"formal", "casual", "tone"}},
	{"brevity", []string{"brief", "detailed", "length"}},
}

// KeyFor returns the canonical key for content, or "" if none of the
// patterns match.
func KeyFor(content string) string {
	lower := strings.ToLower(content)
	for _, kp := range canonicalKeys {
		for _, p := range kp.patterns {
			if strings.Contains(lower, p) {
				return kp.key
			}
		}
	}
	return ""
}

// Canonicalizer resolves a candidate memory against existing memories
// sharing its canonical key before the caller persists it.
type Canonicalizer struct {
	store memory.Store
}

// New constructs a Canonicalizer over store.
func New(store memory.Store) *Canonicalizer {
	return &Canonicalizer{store: store}
}

// Resolve looks up candidate's canonical key (tagging it if found) and, when
// an existing memory for that key exists, returns it so the caller can
// update it in place instead of inserting a new row. The most-recently
// created match wins when more than one exists (ListByKey already returns
// newest-first).
func (c *Canonicalizer) Resolve(ctx context.Context, candidate *memory.Memory) (*memory.Memory, error) {
	if candidate.Kind != memory.KindPreference && candidate.Kind != memory.KindInstruction {
		return nil, nil
	}
	key := KeyFor(candidate.Content)
	if key == "" {
		return nil, nil
	}
	if !hasTag(candidate.Tags, key) {
		candidate.Tags = append(candidate.Tags, key)
	}

	existing, err := c.store.ListByKey(ctx, candidate.UserID, key)
	if err != nil {
		return nil, err
	}
	// ListByKey returns newest-first; the same-kind entry closest to the
	// front is the tie-break winner.
	for _, m := range existing {
		if m.Kind != candidate.Kind {
			continue
		}
		log := observability.LoggerWithTrace(ctx)
		log.Debug().Str("canonical_key", key).Str("existing_id", m.ID).Msg("canonicalizer_match")
		return m, nil
	}
	return nil, nil
}

// ApplyUpdate folds candidate into existing: replaces content and source
// turn, keeps the existing ID, and the caller is responsible for calling
// store.Update so the row-level version bump and embedding refresh happen
// atomically with persistence. It also bumps a "version" counter in
// Context, since canonical in-place updates are keyed by that field for
// callers that only look at a memory's context rather than its dedicated
// Version column.
func ApplyUpdate(existing, candidate *memory.Memory) {
	existing.Content = candidate.Content
	existing.ContentHash = memory.ContentHashOf(existing.UserID, candidate.Content)
	existing.Embedding = candidate.Embedding
	existing.Confidence = candidate.Confidence
	existing.SourceTurn = candidate.SourceTurn
	for k, v := range candidate.Context {
		if existing.Context == nil {
			existing.Context = map[string]string{}
		}
		existing.Context[k] = v
	}
	existing.Context["version"] = strconv.Itoa(existing.Version + 1)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
