// Package openai adapts the OpenAI Go SDK to the llm.Provider interface.
package openai

import (
	"context"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"memoryengine/internal/llm"
	"memoryengine/internal/memerr"
	"memoryengine/internal/observability"
)

type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client. model is used when callers pass an empty model to Chat.
func New(apiKey, baseURL, model string, httpClient *http.Client) *Client {
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
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model)}
	for _, m := range msgs {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, sdk.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, sdk.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, sdk.UserMessage(m.Content))
		}
	}

	log := observability.LoggerWithTrace(ctx)
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("openai_chat_failed")
		return "", memerr.New(memerr.DependencyUnavailable, "openai.Chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", memerr.New(memerr.DependencyUnavailable, "openai.Chat", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
