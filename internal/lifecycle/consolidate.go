package lifecycle

import (
	"context"
	"fmt"
	"math"
	"strings"

	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// cluster groups memories whose pairwise cosine similarity is at or above
// threshold into connected components, scoped to a single user and kind
// (mirroring the canonicalizer's same-kind restriction, since merging a
// preference with a commitment would lose meaning).
func cluster(memories []*memory.Memory, threshold float64) [][]*memory.Memory {
	n := len(memories)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if memories[i].UserID != memories[j].UserID || memories[i].Kind != memories[j].Kind {
				continue
			}
			if cosineSimilarity(memories[i].Embedding, memories[j].Embedding) >= threshold {
				union(i, j)
			}
		}
	}

	groups := map[int][]*memory.Memory{}
	for i, m := range memories {
		root := find(i)
		groups[root] = append(groups[root], m)
	}

	var clusters [][]*memory.Memory
	for _, g := range groups {
		if len(g) > 1 {
			clusters = append(clusters, g)
		}
	}
	return clusters
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Consolidator merges clusters of near-duplicate memories into a single
// record via an LLM-written summary of the cluster's contents.
type Consolidator struct {
	llmClient llm.Provider
	model     string
}

// NewConsolidator constructs a Consolidator.
func NewConsolidator(llmClient llm.Provider, model string) *Consolidator {
	return &Consolidator{llmClient: llmClient, model: model}
}

// Merge asks the LLM to fold a cluster's contents into one statement. It
// falls back to the highest-confidence member's content verbatim if the LLM
// call fails, so consolidation never blocks on an LLM outage.
func (c *Consolidator) Merge(ctx context.Context, group []*memory.Memory) string {
	log := observability.LoggerWithTrace(ctx)

	var lines strings.Builder
	for i, m := range group {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, m.Content)
	}

	prompt := fmt.Sprintf(`These statements describe the same underlying fact about a user. Merge them into a single, concise statement that preserves all distinct information. Respond with only the merged statement.

%s`, lines.String())

	reply, err := c.llmClient.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You merge redundant memory statements into one."},
		{Role: "user", Content: prompt},
	}, c.model)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn().Err(err).Msg("consolidation_merge_failed_falling_back_to_best_member")
		return bestMember(group).Content
	}
	return strings.TrimSpace(reply)
}

func bestMember(group []*memory.Memory) *memory.Memory {
	best := group[0]
	for _, m := range group[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	return best
}

// BuildConsolidated creates the replacement memory for a cluster: the merged
// content, max confidence, union of tags/entities, and the current turn as
// its fresh source_turn. The caller is responsible for embedding Content,
// inserting it, and deleting group's originals.
func BuildConsolidated(group []*memory.Memory, mergedContent string, currentTurn int64) *memory.Memory {
	best := bestMember(group)
	tagSet := map[string]struct{}{}
	entitySet := map[string]struct{}{}
	for _, m := range group {
		for _, t := range m.Tags {
			tagSet[t] = struct{}{}
		}
		for _, e := range m.Entities {
			entitySet[e] = struct{}{}
		}
	}

	merged := &memory.Memory{
		UserID:          best.UserID,
		Kind:            best.Kind,
		Content:         mergedContent,
		ContentHash:     memory.ContentHashOf(best.UserID, mergedContent),
		Confidence:      maxConfidence(group),
		ImportanceScore: best.ImportanceScore,
		ImportanceLevel: best.ImportanceLevel,
		Tags:            setToSlice(tagSet),
		Entities:        setToSlice(entitySet),
		Context:         map[string]string{"consolidated_from": joinIDs(group)},
		SourceTurn:      currentTurn,
	}
	return merged
}

func maxConfidence(group []*memory.Memory) float64 {
	max := 0.0
	for _, m := range group {
		if m.Confidence > max {
			max = m.Confidence
		}
	}
	return max
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func joinIDs(group []*memory.Memory) string {
	ids := make([]string, len(group))
	for i, m := range group {
		ids[i] = m.ID
	}
	return strings.Join(ids, ",")
}
