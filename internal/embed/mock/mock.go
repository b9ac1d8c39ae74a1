// Package mock provides a deterministic embedding engine for tests.
// Vectors are built from token hashes so that texts sharing words land
// near each other under cosine similarity, without any model files.
package mock

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/mnemohq/mnemo-mcp/internal/embed"
)

type Engine struct {
	dim int
}

func New(dim int) *Engine {
	if dim <= 0 {
		dim = 64
	}
	return &Engine{dim: dim}
}

func (e *Engine) Dimensions() int { return e.dim }

func (e *Engine) Embed(ctx context.Context, text string, mode embed.Mode) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &embed.EmbeddingError{Reason: "empty input"}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	vec := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		sum := h.Sum32()
		vec[int(sum)%e.dim] += 1
		vec[int(sum>>8)%e.dim] += 0.5
	}
	return embed.Normalize(vec), nil
}

func (e *Engine) Close() error { return nil }
