package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"currex/internal/metrics"
)

const (
	currentRatesPath    = "/api/exchange_rates"
	historicalRatesPath = "/api/exchange_rates_period"

	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "currex/1.0"
	maxErrorSnippet  = 256

	// DefaultMaxResponseBytes caps how much of a provider response is read.
	DefaultMaxResponseBytes int64 = 8 << 20
)

// Options parameterise the rate provider clients.
type Options struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	UserAgent string

	// MaxResponseBytes defaults to DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// apiClient carries what the current and historical clients share:
// base URL, basic auth credentials and the HTTP client.
type apiClient struct {
	opts    Options
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func newAPIClient(opts Options, logger zerolog.Logger) (*apiClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, newError(ErrConfiguration, "new client", errors.New("base url not configured"))
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, newError(ErrConfiguration, "new client", errors.New("basic auth credentials not configured"))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}

	return &apiClient{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

func (c *apiClient) endpoint(op, path string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", newError(ErrInvalidRequest, op, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", newError(ErrInvalidRequest, op, fmt.Errorf("base url %q is not an absolute http(s) url", c.baseURL))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// get issues an authenticated GET and returns the body of a 2xx response.
func (c *apiClient) get(ctx context.Context, op, label, endpoint string) ([]byte, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.FetchDuration.WithLabelValues(label, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(ErrInvalidRequest, op, err)
	}
	requestID := uuid.NewString()
	req.SetBasicAuth(c.opts.Username, c.opts.Password)
	req.Header.Set("Accept", "application/json")
	// The in-process cache decides freshness; never accept an intermediary's copy.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", requestID)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(ErrTransport, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxResponseBytes+1))
	if err != nil {
		return nil, newError(ErrTransport, op, err)
	}
	if int64(len(payload)) > c.opts.MaxResponseBytes {
		outcome = "too_large"
		e := newError(ErrInvalidResponse, op, fmt.Errorf("response body exceeds %d bytes", c.opts.MaxResponseBytes))
		e.Status = resp.StatusCode
		return nil, e
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "bad_status"
		e := newError(ErrInvalidResponse, op, parseHTTPError(payload))
		e.Status = resp.StatusCode
		return nil, e
	}

	outcome = "ok"
	c.logger.Debug().Str("request_id", requestID).Str("endpoint", label).
		Int("bytes", len(payload)).Dur("took", time.Since(start)).Msg("provider responded")
	return payload, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func parseHTTPError(payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Detail != "":
			return errors.New(apiErr.Detail)
		case apiErr.Message != "":
			return errors.New(apiErr.Message)
		case apiErr.Error != "":
			return errors.New(apiErr.Error)
		}
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil
	}
	if len(text) > maxErrorSnippet {
		text = text[:maxErrorSnippet]
	}
	return errors.New(text)
}

func normaliseCurrency(op, currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return "", newError(ErrInvalidRequest, op, errors.New("currency is required"))
	}
	return code, nil
}
