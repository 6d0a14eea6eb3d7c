// Package ollama embeds dataset descriptions and search queries with a
// local Ollama server (POST /api/embed). The default model, all-minilm, is
// sentence-transformers all-MiniLM-L6-v2, which produces 384-dimensional
// vectors.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/embedding"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "all-minilm"

	// DefaultMaxBatch bounds the inputs sent in one /api/embed request.
	// The dataset catalog holds well over a thousand entries and Ollama
	// holds a whole request in memory.
	DefaultMaxBatch = 128
)

var (
	// ErrModelNotFound means the server does not have the model pulled.
	ErrModelNotFound = errors.New("ollama: model not found")

	// ErrUnavailable means the server could not be reached.
	ErrUnavailable = errors.New("ollama: server unavailable")
)

// APIError is a non-200 answer from Ollama. Message is the server's
// "error" field when it sent one.
type APIError struct {
	StatusCode int
	Model      string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusNotFound {
		return fmt.Sprintf("ollama: model %q not found (HTTP 404): run `ollama pull %s`", e.Model, e.Model)
	}
	return fmt.Sprintf("ollama: HTTP %d for model %q: %s", e.StatusCode, e.Model, e.Message)
}

// Is makes a 404 match ErrModelNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrModelNotFound && e.StatusCode == http.StatusNotFound
}

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider against Ollama.
type Provider struct {
	endpoint string
	model    string
	maxBatch int
	hc       *http.Client

	mu   sync.Mutex
	dims int
}

type config struct {
	timeout  time.Duration
	dims     int
	maxBatch int
}

// Option configures a Provider.
type Option func(*config)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDimensions fixes the vector length instead of asking the server.
func WithDimensions(dims int) Option {
	return func(c *config) { c.dims = dims }
}

// WithMaxBatch sets how many texts go into one request.
func WithMaxBatch(n int) Option {
	return func(c *config) { c.maxBatch = n }
}

// New returns a Provider for model at baseURL. Empty values select
// DefaultBaseURL and DefaultModel.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ollama: base URL %q must be an http(s) URL", baseURL)
	}

	cfg := config{maxBatch: DefaultMaxBatch}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBatch <= 0 {
		cfg.maxBatch = DefaultMaxBatch
	}
	dims := cfg.dims
	if dims == 0 {
		dims = modelDimensions(model)
	}
	return &Provider{
		endpoint: u.String() + "/api/embed",
		model:    model,
		maxBatch: cfg.maxBatch,
		hc:       &http.Client{Timeout: cfg.timeout},
		dims:     dims,
	}, nil
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embedding.Provider. Inputs larger than the
// configured batch size are split over several requests.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.maxBatch {
		end := min(start+p.maxBatch, len(texts))
		vecs, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("texts %d-%d of %d: %w", start, end-1, len(texts), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions implements embedding.Provider. For models outside the
// built-in table the length is learned from one embedding request; a failed
// request returns 0 and is retried on the next call.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	dims := p.dims
	p.mu.Unlock()
	if dims != 0 {
		return dims
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := p.embed(ctx, []string{"census dataset"}); err != nil {
		debug.Log("embedding", "dimension detection failed", "model", p.model, "error", err)
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// embed sends one /api/embed request and checks that every vector has the
// model's length. The first successful answer records the length.
func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	// Long catalog descriptions are cut to the model's context window
	// rather than failing the whole batch.
	payload, err := json.Marshal(embedRequest{Model: p.model, Input: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("ollama: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w at %s: %w", ErrUnavailable, p.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: reading response: %w", err)
	}
	debug.Log("embedding", "ollama request", "model", p.model, "inputs", len(texts),
		"status", resp.StatusCode, "duration", time.Since(start))

	var body embedResponse
	decodeErr := json.Unmarshal(raw, &body)
	if resp.StatusCode != http.StatusOK {
		msg := body.Error
		if decodeErr != nil || msg == "" {
			msg = debug.Truncate(strings.TrimSpace(string(raw)), 256)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Model: p.model, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ollama: decoding response: %w", decodeErr)
	}
	if len(body.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(body.Embeddings), len(texts))
	}
	return body.Embeddings, p.checkDims(body.Embeddings)
}

func (p *Provider) checkDims(vecs [][]float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims == 0 {
		p.dims = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) != p.dims {
			return fmt.Errorf("ollama: model %q returned a %d-dimensional vector at %d, want %d", p.model, len(v), i, p.dims)
		}
	}
	return nil
}

// modelDimensions knows the vector length of the common Ollama embedding
// models. Tags such as ":latest" or ":v1.5" are ignored.
func modelDimensions(model string) int {
	name, _, _ := strings.Cut(strings.ToLower(model), ":")
	switch name {
	case "all-minilm":
		return 384
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large", "snowflake-arctic-embed", "bge-large":
		return 1024
	default:
		return 0
	}
}
