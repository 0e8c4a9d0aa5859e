package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/llm"
)

type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Chat(context.Context, []llm.Message, string) (string, error) {
	return s.reply, s.err
}

func TestExtractParsesBareJSONArray(t *testing.T) {
	p := &stubProvider{reply: `[{"type":"fact","content":"I live in Paris","confidence":0.9,"tags":["location"],"entities":["Paris"]}]`}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "I live in Paris now", "Got it, noted.")
	require.Len(t, got, 1)
	assert.Equal(t, "fact", string(got[0].Kind))
	assert.Equal(t, "I live in Paris", got[0].Content)
	assert.Equal(t, 0.9, got[0].Confidence)
}

func TestExtractParsesFencedJSONBlock(t *testing.T) {
	p := &stubProvider{reply: "```json\n[{\"type\":\"preference\",\"content\":\"likes tea\",\"confidence\":0.8}]\n```"}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "I like tea", "Noted.")
	require.Len(t, got, 1)
	assert.Equal(t, "preference", string(got[0].Kind))
}

func TestExtractParsesWrappedMemoriesObject(t *testing.T) {
	p := &stubProvider{reply: `{"memories":[{"type":"instruction","content":"always be brief","confidence":0.75}]}`}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "please be brief", "Ok.")
	require.Len(t, got, 1)
	assert.Equal(t, "instruction", string(got[0].Kind))
}

func TestExtractDropsBelowConfidenceThreshold(t *testing.T) {
	p := &stubProvider{reply: `[{"type":"fact","content":"maybe true","confidence":0.4}]`}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "hmm", "hmm")
	assert.Empty(t, got)
}

func TestExtractDropsInvalidKind(t *testing.T) {
	p := &stubProvider{reply: `[{"type":"rumor","content":"x","confidence":0.9}]`}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "x", "y")
	assert.Empty(t, got)
}

func TestExtractReturnsEmptyOnLLMFailure(t *testing.T) {
	p := &stubProvider{err: errors.New("boom")}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "x", "y")
	assert.Empty(t, got)
}

func TestExtractReturnsEmptyOnUnparseableReply(t *testing.T) {
	p := &stubProvider{reply: "not json at all"}
	e := New(p, "test-model", 0.7)

	got := e.Extract(context.Background(), "x", "y")
	assert.Empty(t, got)
}

func TestParseTemporalReferenceRewritesTomorrow(t *testing.T) {
	ref := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	enhanced, parsed := ParseTemporalReference("let's meet tomorrow at 3pm", ref)
	require.NotNil(t, parsed)
	assert.Contains(t, enhanced, "August 01, 2026")
	assert.Equal(t, 15, parsed.Hour())
}

func TestParseTemporalReferenceInNDays(t *testing.T) {
	ref := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	enhanced, parsed := ParseTemporalReference("call me in 3 days", ref)
	require.NotNil(t, parsed)
	assert.Equal(t, 3, parsed.Day())
	assert.Equal(t, time.August, parsed.Month())
	assert.Contains(t, enhanced, "August 03, 2026")
}

func TestParseTemporalReferenceNoMatch(t *testing.T) {
	ref := time.Now()
	enhanced, parsed := ParseTemporalReference("no temporal words here", ref)
	assert.Nil(t, parsed)
	assert.Equal(t, "no temporal words here", enhanced)
}
