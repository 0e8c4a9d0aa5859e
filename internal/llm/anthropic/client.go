// Package anthropic adapts the Anthropic Go SDK to the llm.Provider interface.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"memoryengine/internal/llm"
	"memoryengine/internal/memerr"
	"memoryengine/internal/observability"
)

const defaultMaxTokens int64 = 1024

type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// New constructs a Client. model is used when callers pass an empty model to Chat.
func New(apiKey, baseURL, model string, maxTokens int64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if strings.TrimSpace(model) == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model, maxTokens: maxTokens}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	var system []anthropic.TextBlockParam
	var converted []anthropic.MessageParam
	for _, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		System:    system,
		MaxTokens: c.maxTokens,
	}

	log := observability.LoggerWithTrace(ctx)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("anthropic_chat_failed")
		return "", memerr.New(memerr.DependencyUnavailable, "anthropic.Chat", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}
