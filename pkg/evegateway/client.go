package evegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/battlescope/battlescope/pkg/config"
	"github.com/battlescope/battlescope/pkg/database"
	"github.com/battlescope/battlescope/pkg/evegateway/killmails"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client is the EVE Online ESI client used for killmail enrichment and
// server status checks. Unlike the full falcon gateway this client only
// carries the category clients the clusterer and enrichment worker touch.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	cacheManager CacheManager
	retryClient  RetryClient

	Status    StatusClient
	Killmails killmails.Client
}

// ESIStatusResponse represents the EVE Online server status.
type ESIStatusResponse struct {
	Players       int       `json:"players"`
	ServerVersion string    `json:"server_version"`
	StartTime     time.Time `json:"start_time"`
}

// StatusClient interface for status operations.
type StatusClient interface {
	GetServerStatus(ctx context.Context) (*ESIStatusResponse, error)
}

// NewClient creates an EVE Online ESI client with in-memory caching.
func NewClient() *Client {
	return newClient(NewDefaultCacheManager())
}

// NewClientWithRedis creates an EVE Online ESI client backed by Redis cache,
// so cached status responses survive process restarts (the killmail
// sub-client does not cache).
func NewClientWithRedis(redisClient *database.Redis) *Client {
	return newClient(NewRedisCacheManager(redisClient))
}

func newClient(cacheManager CacheManager) *Client {
	var transport http.RoundTripper = http.DefaultTransport

	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		transport = otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Host)
			}),
		)
	}

	userAgent := config.GetEnv("ESI_USER_AGENT", "battlescope/1.0.0 contact@example.com")
	baseURL := config.GetEnv("ESI_BASE_URL", "https://esi.evetech.net")

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	errorLimits := &ESIErrorLimits{}
	limitsMutex := &sync.RWMutex{}
	retryClient := NewDefaultRetryClient(httpClient, errorLimits, limitsMutex)

	statusClient := &statusClientImpl{cacheManager, retryClient, httpClient, baseURL, userAgent}
	killmailClient := killmails.NewKillmailClient(baseURL, userAgent, retryClient)

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		userAgent:    userAgent,
		cacheManager: cacheManager,
		retryClient:  retryClient,
		Status:       statusClient,
		Killmails:    killmailClient,
	}
}

// HTTPClient returns the underlying HTTP client for advanced usage.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetServerStatus retrieves EVE Online server status from ESI with caching.
func (c *Client) GetServerStatus(ctx context.Context) (*ESIStatusResponse, error) {
	return c.Status.GetServerStatus(ctx)
}

type statusClientImpl struct {
	cacheManager CacheManager
	retryClient  RetryClient
	httpClient   *http.Client
	baseURL      string
	userAgent    string
}

func (s *statusClientImpl) GetServerStatus(ctx context.Context) (*ESIStatusResponse, error) {
	var span trace.Span
	endpoint := "/status"
	cacheKey := fmt.Sprintf("%s%s", s.baseURL, endpoint)

	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		tracer := otel.Tracer("battlescope/evegateway")
		ctx, span = tracer.Start(ctx, "evegateway.GetServerStatus")
		defer span.End()

		span.SetAttributes(
			attribute.String("esi.endpoint", "status"),
			attribute.String("esi.base_url", s.baseURL),
			attribute.String("cache.key", cacheKey),
		)
	}

	if cachedData, exists, err := s.cacheManager.Get(cacheKey); err == nil && exists {
		var status ESIStatusResponse
		if err := json.Unmarshal(cachedData, &status); err == nil {
			if span != nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				span.SetStatus(codes.Ok, "cache hit")
			}
			return &status, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", cacheKey, nil)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create request")
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	s.cacheManager.SetConditionalHeaders(req, cacheKey)

	resp, err := s.retryClient.DoWithRetry(ctx, req, 3)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to call ESI")
		}
		return nil, fmt.Errorf("failed to call ESI: %w", err)
	}
	defer resp.Body.Close()

	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusNotModified {
		s.cacheManager.RefreshExpiry(cacheKey, resp.Header)
		if cachedData, found, err := s.cacheManager.GetForNotModified(cacheKey); err == nil && found {
			var status ESIStatusResponse
			if err := json.Unmarshal(cachedData, &status); err != nil {
				return nil, fmt.Errorf("failed to parse cached response: %w", err)
			}
			return &status, nil
		}
	}

	if resp.StatusCode != http.StatusOK {
		if span != nil {
			span.SetStatus(codes.Error, "ESI returned error status")
		}
		return nil, fmt.Errorf("ESI returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read response")
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	s.cacheManager.Set(cacheKey, body, resp.Header)

	var status ESIStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to parse response")
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int("esi.players", status.Players),
			attribute.String("esi.server_version", status.ServerVersion),
		)
		span.SetStatus(codes.Ok, "successfully retrieved ESI status")
	}

	slog.InfoContext(ctx, "retrieved ESI server status",
		slog.Int("players", status.Players),
		slog.String("server_version", status.ServerVersion))

	return &status, nil
}
