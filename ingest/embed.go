package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultTokenBudget    = 7500
	DefaultFallbackTokens = 1000
	truncationMarker      = "\n[truncated]"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// EstimateTokens is the cheap heuristic used to decide whether a text fits the
// provider's context: one token per four characters, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateToBudget shortens text so its token estimate fits the budget. The
// text is split on the first blank line into a header and a body; the header
// is kept whole and the body cut to the remaining budget, with a visible
// marker appended. Texts already under budget come back unchanged.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	maxChars := budget * 4

	header, body, found := strings.Cut(text, "\n\n")
	if !found || len(header)+len(truncationMarker)+2 >= maxChars {
		cut := maxChars - len(truncationMarker)
		if cut < 0 {
			cut = 0
		}
		return text[:cut] + truncationMarker
	}

	bodyChars := maxChars - len(header) - 2 - len(truncationMarker)
	if bodyChars > len(body) {
		bodyChars = len(body)
	}
	return header + "\n\n" + body[:bodyChars] + truncationMarker
}

// EmbeddingError carries the provider's HTTP status so size-related failures
// can be told apart from everything else.
type EmbeddingError struct {
	StatusCode int
	Message    string
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding API returned status %d: %s", e.StatusCode, e.Message)
}

// IsSizeError reports whether err means the input was too large for the
// provider, which is the only error class the fallback path applies to.
func IsSizeError(err error) bool {
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		return false
	}
	if embErr.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	if embErr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(embErr.Message)
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "too large") ||
		strings.Contains(msg, "too long")
}

// EmbeddingClient calls an OpenAI-compatible /v1/embeddings endpoint.
type EmbeddingClient struct {
	Endpoint       string
	APIKey         string
	Model          string
	TokenBudget    int
	FallbackTokens int
	Client         *retryablehttp.Client

	once sync.Once
}

var _ Embedder = (*EmbeddingClient)(nil)

func (e *EmbeddingClient) init() {
	e.once.Do(func() {
		if e.TokenBudget == 0 {
			e.TokenBudget = DefaultTokenBudget
		}
		if e.FallbackTokens == 0 {
			e.FallbackTokens = DefaultFallbackTokens
		}
		if e.Client == nil {
			e.Client = retryablehttp.NewClient()
			e.Client.RetryMax = 2
			e.Client.Logger = nil
		}
	})
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *EmbeddingClient) call(ctx context.Context, input []string) ([][]float64, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("could not marshal embedding request: %w", err)
	}

	requestURL := strings.TrimSuffix(e.Endpoint, "/") + "/v1/embeddings"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failure in embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read embedding response: %w", err)
	}

	decoded := embeddingResponse{}
	_ = json.Unmarshal(body, &decoded)

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(body))
		if decoded.Error != nil {
			message = decoded.Error.Message
		}
		return nil, &EmbeddingError{StatusCode: resp.StatusCode, Message: message}
	}

	if len(decoded.Data) != len(input) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(decoded.Data), len(input))
	}

	sort.Slice(decoded.Data, func(i, j int) bool {
		return decoded.Data[i].Index < decoded.Data[j].Index
	})
	vectors := make([][]float64, len(decoded.Data))
	for i, d := range decoded.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Embed embeds one text. Oversized inputs are truncated to the token budget
// first; if the provider still rejects the input for size, one fallback call
// is made with a minimal excerpt. Any other error is returned unmodified.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	e.init()

	truncated := TruncateToBudget(text, e.TokenBudget)
	vectors, err := e.call(ctx, []string{truncated})
	if err == nil {
		return vectors[0], nil
	}
	if !IsSizeError(err) {
		return nil, err
	}

	slog.Warn("embedding input still too large after truncation, retrying with minimal excerpt", "estimated_tokens", EstimateTokens(truncated))
	excerptChars := e.FallbackTokens * 4
	if excerptChars > len(text) {
		excerptChars = len(text)
	}
	excerpt := text[:excerptChars] + truncationMarker

	vectors, err = e.call(ctx, []string{excerpt})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in one call. Each text is truncated to the
// budget; there is no per-item fallback here, callers degrade to Embed when
// the whole batch fails.
func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	e.init()

	if len(texts) == 0 {
		return nil, nil
	}
	truncated := make([]string, len(texts))
	for i, text := range texts {
		truncated[i] = TruncateToBudget(text, e.TokenBudget)
	}
	return e.call(ctx, truncated)
}
