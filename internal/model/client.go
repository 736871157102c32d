// Package model connects Kestrel to the external model service that owns
// the trained scaler, dimensionality reducer, classifier, and anomaly
// detector. The service is a black box reached over HTTP with JSON float
// vectors; this package also owns the prediction pipeline composed from
// those collaborators.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// MinTrainingSamples is the smallest labeled set the training collaborator
// accepts.
const MinTrainingSamples = 6

// Client talks to the model service. It implements domain.Scaler,
// domain.Reducer, domain.Classifier, domain.AnomalyDetector, and
// domain.ModelAdmin. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a model service client. Returns nil when no base URL
// is configured, which callers treat as "no model collaborator".
func NewClient(cfg domain.ModelServiceConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type vectorRequest struct {
	Features []float64 `json:"features"`
}

type vectorResponse struct {
	Features []float64 `json:"features"`
}

type classifyResponse struct {
	Probability float64 `json:"probability"`
}

type anomalyResponse struct {
	Score   float64 `json:"score"`
	Outlier bool    `json:"outlier"`
}

type trainRequest struct {
	Features [][]float64 `json:"features"`
	Labels   []int       `json:"labels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Scale implements domain.Scaler.
func (c *Client) Scale(ctx context.Context, features []float64) ([]float64, error) {
	var resp vectorResponse
	if err := c.post(ctx, "/scale", vectorRequest{Features: features}, &resp); err != nil {
		return nil, err
	}
	return resp.Features, nil
}

// Reduce implements domain.Reducer.
func (c *Client) Reduce(ctx context.Context, scaled []float64) ([]float64, error) {
	var resp vectorResponse
	if err := c.post(ctx, "/reduce", vectorRequest{Features: scaled}, &resp); err != nil {
		return nil, err
	}
	return resp.Features, nil
}

// Classify implements domain.Classifier.
func (c *Client) Classify(ctx context.Context, reduced []float64) (float64, error) {
	var resp classifyResponse
	if err := c.post(ctx, "/classify", vectorRequest{Features: reduced}, &resp); err != nil {
		return 0, err
	}
	return resp.Probability, nil
}

// Score implements domain.AnomalyDetector.
func (c *Client) Score(ctx context.Context, reduced []float64) (float64, bool, error) {
	var resp anomalyResponse
	if err := c.post(ctx, "/anomaly", vectorRequest{Features: reduced}, &resp); err != nil {
		return 0, false, err
	}
	return resp.Score, resp.Outlier, nil
}

// Info implements domain.ModelAdmin.
func (c *Client) Info(ctx context.Context) (*domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}
	var info domain.ModelInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Train implements domain.ModelAdmin. The size and shape requirements are
// checked client-side so degenerate sets never reach the service.
func (c *Client) Train(ctx context.Context, features [][]float64, labels []int) (*domain.TrainingResult, error) {
	if len(features) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: need at least %d samples, got %d",
			domain.ErrInsufficientData, MinTrainingSamples, len(features))
	}
	if len(labels) != len(features) {
		return nil, fmt.Errorf("%w: %d samples but %d labels",
			domain.ErrInsufficientData, len(features), len(labels))
	}
	for i, f := range features {
		if len(f) != len(features[0]) {
			return nil, fmt.Errorf("%w: sample %d has %d features, expected %d",
				domain.ErrInsufficientData, i, len(f), len(features[0]))
		}
	}

	var result domain.TrainingResult
	if err := c.post(ctx, "/train", trainRequest{Features: features, Labels: labels}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reset implements domain.ModelAdmin.
func (c *Client) Reset(ctx context.Context) error {
	return c.post(ctx, "/reset", struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return domain.ErrModelUnavailable
	}
	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("model service: %s", apiErr.Error)
		}
		return fmt.Errorf("model service: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
