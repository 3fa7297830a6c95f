package recompute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// ClientConfig configures the HTTP recompute client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RatePerSec   float64
	Burst        int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// HTTPRecomputer calls the stats service recompute endpoint
type HTTPRecomputer struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	retry      *RetryPolicy
	logger     zerolog.Logger
}

// recomputeResponse is the stats service reply
type recomputeResponse struct {
	RequestID string              `json:"request_id,omitempty"`
	Stats     models.DerivedStats `json:"stats"`
	Message   string              `json:"message,omitempty"`
}

// statusError is a non-2xx reply from the stats service
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("recompute service error (status %d): %s", e.code, e.message)
}

// NewHTTPRecomputer creates a recompute client. A nil httpClient gets one
// with cfg.Timeout.
func NewHTTPRecomputer(cfg ClientConfig, httpClient *http.Client, logger zerolog.Logger) *HTTPRecomputer {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	st := gobreaker.Settings{
		Name:     "recompute",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx means the request was bad, not that the service is down
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code < 500
			}
			return err == nil
		},
	}

	return &HTTPRecomputer{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker(st),
		limiter:    rate.NewLimiter(limit, burst),
		retry:      NewRetryPolicy(cfg.MaxAttempts, cfg.RetryBackoff),
		logger:     logger.With().Str("component", "recompute_client").Logger(),
	}
}

// Recompute implements contracts.Recomputer
func (c *HTTPRecomputer) Recompute(ctx context.Context, req contracts.RecomputeRequest) (models.DerivedStats, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.DerivedStats{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	requestID := uuid.New().String()

	var stats models.DerivedStats
	err = c.retry.Execute(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.post(ctx, requestID, body)
		})
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code < 500 {
				return Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Permanent(err)
			}
			return err
		}

		stats = result.(models.DerivedStats)
		return nil
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("entity_id", req.EntityID).
			Str("market", req.Market).
			Msg("recompute failed")
		return models.DerivedStats{}, err
	}

	return stats, nil
}

func (c *HTTPRecomputer) post(ctx context.Context, requestID string, body []byte) (models.DerivedStats, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/recompute", bytes.NewReader(body))
	if err != nil {
		return models.DerivedStats{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.DerivedStats{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.DerivedStats{}, fmt.Errorf("failed to read response: %w", err)
	}

	var out recomputeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 400 {
			return models.DerivedStats{}, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		return models.DerivedStats{}, &statusError{code: resp.StatusCode, message: out.Message}
	}

	if err := out.Stats.Validate(); err != nil {
		return models.DerivedStats{}, Permanent(fmt.Errorf("invalid stats in response: %w", err))
	}

	return out.Stats, nil
}
