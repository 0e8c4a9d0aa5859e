package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"memoryengine/internal/memerr"
	"memoryengine/internal/observability"
)

// OpenAIProvider embeds text via the OpenAI embeddings REST endpoint. The
// official SDK does not expose a stable embeddings surface across the
// versions this tree targets, so (as with the teacher's own embedding
// client) this talks to the HTTP API directly.
type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimension  int
}

// NewOpenAIProvider constructs a Provider that calls POST {baseURL}/embeddings.
func NewOpenAIProvider(apiKey, baseURL, model string, dimension int, httpClient *http.Client) *OpenAIProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		httpClient: httpClient,
		baseURL:    base,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		dimension:  dimension,
	}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) Dimension() int { return p.dimension }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log := observability.LoggerWithTrace(ctx)

	reqBody, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts, Dimensions: p.dimension})
	if err != nil {
		return nil, memerr.New(memerr.Internal, "embedding.OpenAI.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, memerr.New(memerr.Internal, "embedding.OpenAI.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("model", p.model).Msg("openai_embed_request_failed")
		return nil, memerr.New(memerr.DependencyUnavailable, "embedding.OpenAI.Embed", err)
	}
	defer resp.Body.Close()

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "embedding.OpenAI.Embed", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		log.Error().Int("status", resp.StatusCode).Str("model", p.model).Msg("openai_embed_failed")
		return nil, memerr.New(memerr.DependencyUnavailable, "embedding.OpenAI.Embed", fmt.Errorf("%s", msg))
	}
	if len(parsed.Data) != len(texts) {
		return nil, memerr.New(memerr.DependencyUnavailable, "embedding.OpenAI.Embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data)))
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = normalize(d.Embedding)
	}
	return out, nil
}
