package embed

import (
	"context"
	"fmt"
	"strings"
)

// Mode distinguishes how a text participates in retrieval. The underlying
// models are trained asymmetrically: documents and queries get different
// instruction prefixes, and mixing them up degrades ranking silently
// instead of erroring.
type Mode int

const (
	ModeDocument Mode = iota
	ModeQuery
)

const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Engine produces fixed-dimension embedding vectors. Implementations load
// their model once; concurrent Embed calls must never trigger a second load.
type Engine interface {
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)
	Dimensions() int
	Close() error
}

type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding: %s", e.Reason)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// prepareInput validates the text and applies the mode prefix.
func prepareInput(text string, mode Mode) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &EmbeddingError{Reason: "empty input"}
	}
	if mode == ModeQuery {
		return queryPrefix + text, nil
	}
	return documentPrefix + text, nil
}
