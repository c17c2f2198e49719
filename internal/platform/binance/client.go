// Package binance is the REST client for the Binance.US spot API: depth
// snapshots and signed LIMIT order submission.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/depthbot/internal/crypto"
	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/feed"
)

// ErrCircuitOpen is returned while the order breaker is open.
var ErrCircuitOpen = errors.New("binance: order circuit open")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// OrdersPerSecond and Burst configure the local order rate limiter.
	// A zero rate disables limiting.
	OrdersPerSecond float64
	Burst           int

	// BreakerFailures is the number of consecutive transport failures that
	// opens the breaker; BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client talks to the venue REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a REST client. auth may be nil when only public
// endpoints are used.
func NewClient(cfg ClientConfig, auth *crypto.HMACAuth, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRESTURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	logger = logger.With(slog.String("component", "binance_client"))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.OrdersPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), burst)
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance_orders",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Venue rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrInvalidOrder) ||
				errors.Is(err, domain.ErrUnauthorized)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		auth:       auth,
		limiter:    limiter,
		breaker:    breaker,
		logger:     logger,
	}
}

// DepthSnapshot fetches the current book for symbol. Any failure is wrapped
// with domain.ErrSnapshotUnavailable.
func (c *Client) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.DepthSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/api/v3/depth?"+q.Encode(), "", false)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("binance: depth snapshot: %w: %w", domain.ErrSnapshotUnavailable, err)
	}
	snap, err := feed.DecodeSnapshot(body)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("binance: depth snapshot: %w: %w", domain.ErrSnapshotUnavailable, err)
	}
	return snap, nil
}

// SubmitOrder places a signed LIMIT GTC order. It satisfies
// executor.OrderGateway.
func (c *Client) SubmitOrder(ctx context.Context, clientOrderID string, p domain.OrderPayload) (domain.OrderAck, error) {
	if c.auth == nil {
		return domain.OrderAck{}, fmt.Errorf("binance: submit order: %w: no credentials", domain.ErrUnauthorized)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.OrderAck{}, fmt.Errorf("binance: submit order: %w: %w", domain.ErrRateLimited, err)
	}

	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", p.Type)
	params.Set("timeInForce", "GTC")
	params.Set("quantity", p.Quantity)
	params.Set("price", p.Price)
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}
	form := c.auth.SignParams(params)

	res, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, http.MethodPost, "/api/v3/order", form, true)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.OrderAck{}, ErrCircuitOpen
		}
		return domain.OrderAck{}, fmt.Errorf("binance: submit order: %w", err)
	}

	var resp APIOrderResponse
	if err := json.Unmarshal(res.([]byte), &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("binance: decode order response: %w", err)
	}
	return resp.ToDomainAck(), nil
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path, form string, signed bool) ([]byte, error) {
	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		for k, v := range c.auth.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrTransport, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
		msg = fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Msg)
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case statusCode == http.StatusTooManyRequests || statusCode == 418:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case statusCode >= 400 && statusCode < 500:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, msg)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, statusCode, msg)
	}
}
