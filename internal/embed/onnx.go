package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mnemohq/mnemo-mcp/internal/logger"
)

var log = logger.ForComponent("embed")

// ONNXEngine runs a local sentence-transformer model through ONNX Runtime.
// The session is created on first use behind a sync.Once so that concurrent
// callers cannot race two model loads.
type ONNXEngine struct {
	modelPath     string
	tokenizerPath string
	dim           int
	maxSeqLen     int

	loadOnce sync.Once
	loadErr  error
	session  *ort.DynamicAdvancedSession
	vocab    *wordPieceVocab

	// inference is serialized; correctness only requires that the model is
	// loaded once, not that calls run in parallel.
	mu sync.Mutex
}

func NewONNXEngine(modelPath, tokenizerPath string, dim int) *ONNXEngine {
	if dim <= 0 {
		dim = 768
	}
	return &ONNXEngine{
		modelPath:     modelPath,
		tokenizerPath: tokenizerPath,
		dim:           dim,
		maxSeqLen:     256,
	}
}

func (e *ONNXEngine) Dimensions() int { return e.dim }

func (e *ONNXEngine) load() error {
	e.loadOnce.Do(func() {
		vocab, err := loadWordPieceVocab(e.tokenizerPath)
		if err != nil {
			e.loadErr = &EmbeddingError{Reason: "load tokenizer", Err: err}
			return
		}

		if err := ort.InitializeEnvironment(); err != nil {
			e.loadErr = &EmbeddingError{Reason: "initialize onnx runtime", Err: err}
			return
		}

		session, err := ort.NewDynamicAdvancedSession(e.modelPath,
			[]string{"input_ids", "attention_mask", "token_type_ids"},
			[]string{"last_hidden_state"},
			nil,
		)
		if err != nil {
			e.loadErr = &EmbeddingError{Reason: "create onnx session", Err: err}
			return
		}

		e.vocab = vocab
		e.session = session
		log.Info("onnx model loaded", "model", e.modelPath, "dimensions", e.dim)
	})
	return e.loadErr
}

func (e *ONNXEngine) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	input, err := prepareInput(text, mode)
	if err != nil {
		return nil, err
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := e.vocab.tokenize(input)

	maxLen := e.maxSeqLen
	inputIDs := make([]int64, maxLen)
	attentionMask := make([]int64, maxLen)
	tokenTypeIDs := make([]int64, maxLen)

	inputIDs[0] = int64(e.vocab.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxLen-2 {
		tokenLen = maxLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.vocab.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxLen))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, &EmbeddingError{Reason: "create input_ids tensor", Err: err}
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, &EmbeddingError{Reason: "create attention_mask tensor", Err: err}
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, &EmbeddingError{Reason: "create token_type_ids tensor", Err: err}
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, &EmbeddingError{Reason: "inference", Err: err}
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &EmbeddingError{Reason: "unexpected output tensor type"}
	}

	vec, err := meanPool(outTensor.GetData(), outTensor.GetShape(), attentionMask, e.dim)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

func (e *ONNXEngine) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// meanPool reduces [1, seq, hidden] token states to a single vector,
// averaging only attended positions. A 2-D output is already pooled.
func meanPool(data []float32, shape []int64, attentionMask []int64, dim int) ([]float32, error) {
	if len(shape) == 2 {
		if len(data) < dim {
			return nil, &EmbeddingError{Reason: fmt.Sprintf("output dimension %d smaller than expected %d", len(data), dim)}
		}
		vec := make([]float32, dim)
		copy(vec, data[:dim])
		return vec, nil
	}
	if len(shape) != 3 {
		return nil, &EmbeddingError{Reason: fmt.Sprintf("unexpected output shape %v", shape)}
	}
	seqLen, hidden := int(shape[1]), int(shape[2])
	if hidden != dim {
		return nil, &EmbeddingError{Reason: fmt.Sprintf("hidden size %d does not match configured dimension %d", hidden, dim)}
	}

	vec := make([]float32, dim)
	attended := float32(0)
	for i := 0; i < seqLen; i++ {
		if i >= len(attentionMask) || attentionMask[i] == 0 {
			continue
		}
		attended++
		offset := i * hidden
		for j := 0; j < hidden; j++ {
			vec[j] += data[offset+j]
		}
	}
	if attended == 0 {
		return nil, &EmbeddingError{Reason: "no attended tokens"}
	}
	for j := range vec {
		vec[j] /= attended
	}
	return vec, nil
}

// Normalize scales a vector to unit length. Zero vectors pass through.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

type wordPieceVocab struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadWordPieceVocab(path string) (*wordPieceVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, err
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	return &wordPieceVocab{
		vocab:    tokenizerData.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}, nil
}

func (v *wordPieceVocab) tokenize(text string) []int64 {
	words := strings.Fields(strings.ToLower(text))

	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := v.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range v.wordPiece(word) {
			if id, ok := v.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(v.unkToken))
			}
		}
	}
	return tokens
}

// wordPiece splits an out-of-vocabulary word into greedy longest-prefix
// subwords with the ## continuation marker.
func (v *wordPieceVocab) wordPiece(word string) []string {
	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := v.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}
