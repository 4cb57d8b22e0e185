package bybit

import (
	"context"
	"os"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
)

// Config holds the Bybit connection parameters. Credentials come from the
// environment, never from config files.
type Config struct {
	APIKey          string
	APISecret       string
	Testnet         bool
	Demo            bool
	Category        string  // linear, inverse, spot
	MinStopDistance float64 // backstop; Bybit's instrument API has no stops level
}

// ConfigFromEnv builds a Config from BYBIT_API_KEY / BYBIT_API_SECRET.
func ConfigFromEnv(category string, demo bool, minStopDistance float64) (Config, error) {
	key := os.Getenv("BYBIT_API_KEY")
	secret := os.Getenv("BYBIT_API_SECRET")
	if key == "" || secret == "" {
		return Config{}, apperrors.NewConfigurationError("bybit",
			"BYBIT_API_KEY and BYBIT_API_SECRET must be set")
	}
	return Config{
		APIKey:          key,
		APISecret:       secret,
		Testnet:         os.Getenv("BYBIT_TESTNET") == "true",
		Demo:            demo,
		Category:        category,
		MinStopDistance: minStopDistance,
	}, nil
}

// Client implements broker.Broker against Bybit's v5 API. Read calls go
// through a rate limiter and a circuit breaker; order placement goes
// through the rate limiter only and is never retried.
type Client struct {
	httpClient *bybit_api.Client
	cfg        Config
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a Bybit client for the configured environment.
func NewClient(cfg Config) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bybit-reads",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(
			cfg.APIKey,
			cfg.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: breaker,
	}
}

// Environment describes the target environment for logging.
func (c *Client) Environment() string {
	switch {
	case c.cfg.Demo:
		return "demo"
	case c.cfg.Testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}

// readCall runs a read-only API call through the limiter, the breaker and a
// bounded exponential backoff. Only the read path retries; placement never
// does.
func (c *Client) readCall(ctx context.Context, operation string, fn func() (interface{}, error)) (interface{}, error) {
	const maxAttempts = 3
	delay := time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewConnectivityFailure("bybit", operation, err)
		}
		result, err := c.breaker.Execute(fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, apperrors.NewConnectivityFailure("bybit", operation, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, apperrors.NewConnectivityFailure("bybit", operation, lastErr)
}
