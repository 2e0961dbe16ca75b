package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
	"github.com/sony/gobreaker"
)

// GatewayConfig configures one provider adapter.
type GatewayConfig struct {
	BaseURL        string
	SecretKey      string
	TimeoutSeconds int
}

// gatewayClient is the shared transport: bounded timeout, circuit breaker,
// call-latency metrics and the rejected/unreachable classification.
type gatewayClient struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func newGatewayClient(name string, cfg GatewayConfig, m *metrics.Metrics) *gatewayClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &gatewayClient{
		name:   name,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		metrics: m,
	}
}

type gatewayResponse struct {
	status int
	body   []byte
}

// do runs one HTTP call through the breaker. Transport failures, 5xx
// responses and an open breaker all surface as GatewayUnreachable; 4xx
// responses return to the caller for rejection decoding.
func (c *gatewayClient) do(ctx context.Context, call string, build func(ctx context.Context) (*http.Request, error)) (*gatewayResponse, error) {
	started := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.GatewayCallDuration.WithLabelValues(c.name, call).Observe(time.Since(started).Seconds())
		}
	}()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &domain.GatewayUnreachableError{Gateway: c.name, Cause: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, &domain.GatewayUnreachableError{Gateway: c.name, Cause: err}
		}
		if resp.StatusCode >= 500 {
			return nil, &domain.GatewayUnreachableError{
				Gateway: c.name,
				Cause:   errors.New(http.StatusText(resp.StatusCode)),
			}
		}
		return &gatewayResponse{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.GatewayUnreachableError{Gateway: c.name, Cause: err}
		}
		return nil, err
	}
	return result.(*gatewayResponse), nil
}

func jsonRequest(ctx context.Context, method, url, secret string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
