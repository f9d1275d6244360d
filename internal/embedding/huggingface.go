// ABOUTME: Hugging Face feature-extraction client for sentence embeddings
// ABOUTME: Validates the response shape and length before returning a vector

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Defaults match the sentence-transformers model the chat frontend was built around.
const (
	DefaultModel      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultBaseURL    = "https://router.huggingface.co/hf-inference"
	DefaultDimensions = 384

	maxResponseBytes = 1 << 20
)

// HuggingFaceConfig configures a HuggingFace provider.
type HuggingFaceConfig struct {
	BaseURL    string
	Model      string
	Token      string
	Dimensions int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HuggingFace calls the hosted feature-extraction pipeline.
type HuggingFace struct {
	endpoint   string
	token      string
	dims       int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHuggingFace creates a provider. Zero-valued fields fall back to the defaults.
func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HuggingFace{
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/models/" + cfg.Model + "/pipeline/feature-extraction",
		token:      cfg.Token,
		dims:       cfg.Dimensions,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With("component", "embedding", "provider", "huggingface"),
	}
}

// Dimensions returns the expected vector length.
func (h *HuggingFace) Dimensions() int { return h.dims }

type featureExtractionRequest struct {
	Inputs string `json:"inputs"`
}

// Embed requests a sentence embedding for text.
func (h *HuggingFace) Embed(ctx context.Context, text string) ([]float32, error) {
	input, err := normalizeInput(text)
	if err != nil {
		return nil, err
	}
	if h.token == "" {
		return nil, fmt.Errorf("%w: no API token configured", ErrUnavailable)
	}

	body, err := json.Marshal(featureExtractionRequest{Inputs: input})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	vec, err := parseFeatureVector(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vec) != h.dims {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrUnavailable, len(vec), h.dims)
	}

	h.logger.Debug("embedding generated", "dims", len(vec), "input_len", len(input), "elapsed", time.Since(start))
	return vec, nil
}

// parseFeatureVector accepts either a flat vector or a single-row matrix.
func parseFeatureVector(raw []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}
	if len(nested) != 1 {
		return nil, fmt.Errorf("expected one embedding row, got %d", len(nested))
	}
	return nested[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
