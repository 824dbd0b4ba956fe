package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/metrics"
	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/quota"
	"github.com/resaleops/autopilot/internal/repositories"
)

// tokenExpiryBuffer: refresh the access token when it expires this soon.
const tokenExpiryBuffer = 5 * time.Minute

// Operation names one HTTP or legacy-XML call against the marketplace.
type Operation struct {
	Method string
	Path   string
	Body   interface{}
	// Mutating operations count against the daily revision quota.
	Mutating bool
	// LegacyXML routes the call to the legacy trading endpoint with the
	// call-name headers; Body must then be a prebuilt XML string.
	LegacyXML bool
	CallName  string
}

// Response is the raw marketplace reply after a successful call.
type Response struct {
	StatusCode int
	Body       []byte
}

// ClientConfig configures one marketplace client.
type ClientConfig struct {
	Channel       string
	BaseURL       string
	LegacyURL     string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	MarketplaceID string
	// CompatibilityLevel is the legacy API version header.
	CompatibilityLevel string
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffCap         time.Duration
	Timeout            time.Duration
}

// NewClientConfig fills defaults: 3 attempts, 1s base doubling to a 30s cap.
func NewClientConfig(channelName, baseURL, tokenURL, clientID, clientSecret string) ClientConfig {
	return ClientConfig{
		Channel:            channelName,
		BaseURL:            baseURL,
		LegacyURL:          baseURL + "/ws/api.dll",
		TokenURL:           tokenURL,
		ClientID:           clientID,
		ClientSecret:       clientSecret,
		MarketplaceID:      "EBAY_US",
		CompatibilityLevel: "1193",
		MaxAttempts:        3,
		BackoffBase:        time.Second,
		BackoffCap:         30 * time.Second,
		Timeout:            30 * time.Second,
	}
}

// Client is the rate-limited, token-refreshing marketplace client. Every
// failure it returns is normalized to the error taxonomy in internal/errors.
type Client struct {
	cfg         ClientConfig
	httpClient  *http.Client
	connections repositories.ConnectionRepository
	quota       quota.Store
	metrics     *metrics.Metrics
	logger      *zap.Logger

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg ClientConfig, connections repositories.ConnectionRepository, quotaStore quota.Store, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		connections: connections,
		quota:       quotaStore,
		metrics:     m,
		logger:      logger.Named("channel.client"),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one logical call: token check/refresh, quota gate for mutating
// operations, then the request with retry and backoff.
func (c *Client) Execute(ctx context.Context, userID string, op Operation) (*Response, error) {
	token, err := c.ensureToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	if op.Mutating {
		status, err := c.quota.Check(ctx, userID, c.cfg.Channel)
		if err != nil {
			return nil, fmt.Errorf("quota check before %s %s: %w", op.Method, op.Path, err)
		}
		if !status.Allowed {
			c.countQuotaExhaustion()
			return nil, &apperrors.ErrRateLimit{
				Channel:   c.cfg.Channel,
				Remaining: status.Remaining,
				ResetAt:   status.ResetAt,
			}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		started := c.now()
		resp, err := c.doRequest(ctx, token, op)
		c.observeRequest(err == nil, started)
		if err == nil {
			if op.Mutating {
				if _, qerr := c.quota.Increment(ctx, userID, c.cfg.Channel); qerr != nil {
					c.logger.Warn("quota increment failed after successful call",
						zap.String("user_id", userID), zap.Error(qerr))
				}
			}
			return resp, nil
		}

		lastErr = err
		if !apperrors.IsRetryable(err) {
			c.countError()
			return nil, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.backoff(attempt)
		if hint, ok := apperrors.RetryAfter(err); ok {
			if until := hint.Sub(c.now()); until > delay {
				delay = until
			}
		}
		c.logger.Debug("retrying marketplace call",
			zap.String("channel", c.cfg.Channel),
			zap.String("path", op.Path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
	c.countError()
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", op.Method, op.Path, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) observeRequest(ok bool, started time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	c.metrics.ChannelRequests.WithLabelValues(c.cfg.Channel, status).Inc()
	c.metrics.ChannelLatency.WithLabelValues(c.cfg.Channel, status).Observe(c.now().Sub(started).Seconds())
}

func (c *Client) countQuotaExhaustion() {
	if c.metrics == nil {
		return
	}
	c.metrics.QuotaExhaustions.WithLabelValues(c.cfg.Channel).Inc()
}

func (c *Client) countError() {
	if c.metrics == nil {
		return
	}
	c.metrics.Errors.WithLabelValues("channel").Inc()
}

// backoff is exponential from the base, capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << (attempt - 1)
	if d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	return d
}

func (c *Client) doRequest(ctx context.Context, token string, op Operation) (*Response, error) {
	var (
		endpoint    string
		body        io.Reader
		contentType string
	)
	if op.LegacyXML {
		endpoint = c.cfg.LegacyURL
		if s, ok := op.Body.(string); ok && s != "" {
			body = strings.NewReader(s)
		}
		contentType = "text/xml"
	} else {
		endpoint = c.cfg.BaseURL + op.Path
		if op.Body != nil {
			payload, err := json.Marshal(op.Body)
			if err != nil {
				return nil, &apperrors.ErrValidation{Field: "body", Message: err.Error()}
			}
			body = bytes.NewReader(payload)
		}
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, endpoint, body)
	if err != nil {
		return nil, apperrors.NewChannelError(err.Error(), "request_build", 0, false)
	}
	req.Header.Set("Content-Type", contentType)
	if op.LegacyXML {
		req.Header.Set("X-EBAY-API-IAF-TOKEN", token)
		req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", c.cfg.CompatibilityLevel)
		req.Header.Set("X-EBAY-API-CALL-NAME", op.CallName)
		req.Header.Set("X-EBAY-API-SITEID", "0")
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.MarketplaceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Transport failures (DNS, reset, timeout) are transient.
		return nil, apperrors.NewChannelError(err.Error(), "transport", 0, true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewChannelError("reading response: "+err.Error(), "transport", resp.StatusCode, true)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Body: data}, nil
	}
	return nil, classifyResponse(resp.StatusCode, resp.Header, data, c.now())
}

// ensureToken loads the user's connection and refreshes the access token when
// it is about to lapse. The refreshed pair is persisted before any call runs.
func (c *Client) ensureToken(ctx context.Context, userID string) (string, error) {
	conn, err := c.connections.Get(ctx, userID, c.cfg.Channel)
	if err != nil {
		return "", fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return "", &apperrors.ErrAuthentication{Channel: c.cfg.Channel, Reason: "no connection for user"}
	}
	if conn.Status == models.ConnectionRevoked {
		return "", &apperrors.ErrAuthentication{Channel: c.cfg.Channel, Reason: "connection revoked"}
	}

	if !conn.ExpiresWithin(tokenExpiryBuffer, c.now()) {
		return conn.AccessToken, nil
	}

	refreshed, err := c.refreshToken(ctx, conn)
	if err != nil {
		if serr := c.connections.SetStatus(ctx, conn.ID, models.ConnectionExpired); serr != nil {
			c.logger.Warn("failed to mark connection expired", zap.String("connection_id", conn.ID), zap.Error(serr))
		}
		return "", &apperrors.ErrTokenExpired{Channel: c.cfg.Channel, Reason: err.Error()}
	}
	return refreshed, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (c *Client) refreshToken(ctx context.Context, conn *models.ChannelConnection) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	refreshToken := conn.RefreshToken
	if tok.RefreshToken != "" {
		refreshToken = tok.RefreshToken
	}
	expiresAt := c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := c.connections.UpdateTokens(ctx, conn.ID, tok.AccessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	c.logger.Info("refreshed channel token",
		zap.String("channel", c.cfg.Channel),
		zap.String("user_id", conn.UserID),
		zap.Time("expires_at", expiresAt))
	return tok.AccessToken, nil
}
