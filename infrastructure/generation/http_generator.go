package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "branchpost/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// BreakerConfig holds configuration for the generator circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used for remote generators
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      2,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// HTTPGenerator asks a remote service for a nested post. The service
// receives {"topic": "..."} and answers with the post JSON, which is passed
// through undecoded.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewHTTPGenerator creates a remote generator guarded by a circuit breaker
func NewHTTPGenerator(endpoint string, timeout time.Duration, breakerCfg BreakerConfig, logger *zap.Logger) *HTTPGenerator {
	g := &HTTPGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerCfg.Name,
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerCfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Generator circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Caller cancellations say nothing about the remote service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

type generateRequest struct {
	Topic string `json:"topic"`
}

// Generate posts the topic and returns the raw response body
func (g *HTTPGenerator) Generate(ctx context.Context, topic string) (interface{}, error) {
	body, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, topic)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, pkgerrors.NewExternalError("generator", err).WithDetail("breaker", g.breaker.State().String())
		case pkgerrors.GetAppError(err) != nil:
			return nil, err
		default:
			return nil, pkgerrors.NewExternalError("generator", err)
		}
	}
	return body, nil
}

func (g *HTTPGenerator) call(ctx context.Context, topic string) (json.RawMessage, error) {
	payload, err := json.Marshal(generateRequest{Topic: topic})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Generator responded",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generator returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("generator returned invalid JSON")
	}
	return json.RawMessage(data), nil
}
