package embed

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine embeds through an OpenAI-compatible embeddings endpoint.
// Used when no local model is installed; the mode prefixes still apply so
// rankings stay comparable with the local backend.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	dim    int
}

type OpenAIConfig struct {
	Model      string
	BaseURL    string
	APIKeyEnv  string
	Dimensions int
}

func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &EmbeddingError{Reason: fmt.Sprintf("missing API key in env %s", cfg.APIKeyEnv)}
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dim:    cfg.Dimensions,
	}, nil
}

func (e *OpenAIEngine) Dimensions() int { return e.dim }

func (e *OpenAIEngine) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	input, err := prepareInput(text, mode)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{input},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, &EmbeddingError{Reason: "remote embedding request", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &EmbeddingError{Reason: "remote endpoint returned no embeddings"}
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, &EmbeddingError{Reason: fmt.Sprintf("remote embedding has %d dimensions, expected %d", len(vec), e.dim)}
	}
	return Normalize(vec), nil
}

func (e *OpenAIEngine) Close() error { return nil }
