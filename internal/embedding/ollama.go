package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// OllamaConfig configures an HTTP-backed Ollama embedding provider,
// adapted from the teacher's ollama.go embedder, trimmed to this spec's
// Provider contract (no thermal-timeout-progression bookkeeping, which
// was specific to the teacher's own indexing pipeline with no
// SPEC_FULL.md analogue).
type OllamaConfig struct {
	Host    string
	Model   string
	Dim     int
	Timeout time.Duration
}

func (c *OllamaConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Dim == 0 {
		c.Dim = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// OllamaProvider implements Provider over Ollama's HTTP embeddings API.
type OllamaProvider struct {
	client *http.Client
	cfg    OllamaConfig
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider constructs a provider against cfg, applying defaults
// for any zero-valued field.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	cfg.applyDefaults()
	return &OllamaProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

func (p *OllamaProvider) Embedder() string { return "ollama" }
func (p *OllamaProvider) ModelID() string  { return p.cfg.Model }
func (p *OllamaProvider) Dim() int         { return p.cfg.Dim }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed calls Ollama's /api/embed endpoint. Network/timeout failures are
// wrapped as TransientProviderError (the caller may retry via
// contexterr.Retry); a well-formed 4xx/5xx or unparsable body is
// PermanentProviderError.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: text})
	if err != nil {
		return nil, contexterr.PermanentProviderf("ollama: encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, contexterr.PermanentProviderf("ollama: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if isTransientNetErr(err) {
			return nil, contexterr.TransientProviderf("ollama: request failed: %v", err)
		}
		return nil, contexterr.PermanentProviderf("ollama: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contexterr.TransientProviderf("ollama: read response: %v", err)
	}

	if resp.StatusCode >= 500 {
		return nil, contexterr.PermanentProviderf("ollama: server error %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, contexterr.PermanentProviderf("ollama: client error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, contexterr.PermanentProviderf("ollama: malformed response body: %v", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, contexterr.PermanentProviderf("ollama: response contained no embeddings")
	}
	return parsed.Embeddings[0], nil
}

func isTransientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}
