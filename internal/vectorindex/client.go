// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/metrics"
)

// EmbeddingClient turns a batch of "{artist} - {title}" strings into
// fixed-dimension embeddings, in input order.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// httpEmbeddingClient calls an external embedding service over HTTP,
// guarded by a circuit breaker so a degraded embedding backend fails
// fast instead of blocking every ingest batch.
type httpEmbeddingClient struct {
	httpClient *http.Client
	endpoint   string
	dimensions int
	cb         *gobreaker.CircuitBreaker[[][]float32]
	name       string
}

// NewHTTPEmbeddingClient builds an EmbeddingClient per cfg. The breaker
// opens after a 60% failure rate over at least 10 requests; half-open
// probes are capped at cfg.BreakerMaxRequests.
func NewHTTPEmbeddingClient(cfg *config.VectorConfig) EmbeddingClient {
	name := "vectorindex-embedding"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := breakerStateName(from), breakerStateName(to)
			logging.Warn().Str("from", fromStr).Str("to", toStr).Msg("vector index embedding circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &httpEmbeddingClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		endpoint:   cfg.Endpoint,
		dimensions: cfg.Dimensions,
		cb:         cb,
		name:       name,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *httpEmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := c.cb.Execute(func() ([][]float32, error) {
		return c.embedWithRetry(ctx, texts)
	})

	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	return result, nil
}

// embedWithRetry retries doEmbed against transient failures (connection
// resets, timeouts, 5xx) before the circuit breaker ever sees a
// failure for this attempt. A non-2xx client error (4xx) or a
// malformed response is permanent: retrying a bad request wastes time
// and trips the breaker on every attempt instead of once.
func (c *httpEmbeddingClient) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	var result [][]float32
	err := backoff.Retry(func() error {
		vectors, err := c.doEmbed(ctx, texts)
		if err != nil {
			return err
		}
		result = vectors
		return nil
	}, bo)
	return result, err
}

func (c *httpEmbeddingClient) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build embed request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("embedding service returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode embed response: %w", err))
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, backoff.Permanent(fmt.Errorf("embedding service returned %d vectors for %d inputs", len(decoded.Embeddings), len(texts)))
	}
	return decoded.Embeddings, nil
}
