// Package wiki implements a MediaWiki action-API client for the remote
// helper: page listing, revision history, content retrieval, and edits.
//
// All calls are blocking and the client is used from a single goroutine;
// responses are never cached across calls.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olgasafonova/git-remote-mediawiki/metrics"
	"github.com/olgasafonova/git-remote-mediawiki/tracing"
)

// Client handles communication with the MediaWiki API.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger

	// Authentication state
	loggedIn    bool
	csrfToken   string
	tokenExpiry time.Time
}

// NewClient creates a new MediaWiki API client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		logger: logger,
	}
}

// Host returns the wiki hostname used for synthesized author identities.
func (c *Client) Host() string {
	return c.config.Host()
}

// apiRequest makes one action-API request. Transport failures and 5xx/429
// responses are retried with exponential backoff up to MaxRetries; API
// errors in the response envelope are returned as *APIError and never
// retried.
func (c *Client) apiRequest(ctx context.Context, params url.Values) (map[string]interface{}, error) {
	params.Set("format", "json")
	action := params.Get("action")

	// With tracing disabled the global tracer is a no-op.
	ctx, span := tracing.StartSpan(ctx, "wiki.api")
	defer span.End()
	tracing.AddWikiAttributes(span, action, params.Get("title"))

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			}
		}

		// Fresh request for each attempt; the body is consumed on read.
		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", c.config.UserAgent)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
			c.logger.Warn("API request failed, retrying",
				"action", action,
				"attempt", attempt+1,
				"max_retries", c.config.MaxRetries,
				"error", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)

			// Client errors are final, except rate limiting.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
						c.logger.Warn("Rate limited, waiting",
							"retry_after", seconds,
							"attempt", attempt+1)
						select {
						case <-time.After(time.Duration(seconds) * time.Second):
						case <-ctx.Done():
							return nil, fmt.Errorf("context cancelled during rate limit wait: %w", ctx.Err())
						}
						continue
					}
				}
			}

			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
			c.logger.Warn("API returned non-OK status",
				"status", resp.StatusCode,
				"attempt", attempt+1)
			continue
		}

		var result map[string]interface{}
		if err := json.Unmarshal(body, &result); err != nil {
			metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		if errObj := getMap(result["error"]); errObj != nil {
			metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
			apiErr := &APIError{
				Code: getString(errObj["code"]),
				Info: getString(errObj["info"]),
			}
			tracing.RecordError(span, apiErr)
			return nil, apiErr
		}

		metrics.RecordAPIRequest(action, time.Since(start).Seconds(), true)
		return result, nil
	}

	tracing.RecordError(span, lastErr)
	return nil, lastErr
}

// login authenticates with the wiki using a bot password.
func (c *Client) login(ctx context.Context) error {
	if c.loggedIn && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	if !c.config.HasCredentials() {
		return fmt.Errorf("no credentials configured; set MEDIAWIKI_USERNAME and MEDIAWIKI_PASSWORD or remote.<name>.mwLogin/mwPassword")
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "login")

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to get login token: %w", err)
	}

	query := getMap(resp["query"])
	if query == nil {
		return &BadResponseError{Operation: "login", Missing: "query"}
	}
	tokens := getMap(query["tokens"])
	if tokens == nil {
		return &BadResponseError{Operation: "login", Missing: "tokens"}
	}
	loginToken := getString(tokens["logintoken"])
	if loginToken == "" {
		return &BadResponseError{Operation: "login", Missing: "logintoken"}
	}

	params = url.Values{}
	params.Set("action", "login")
	params.Set("lgname", c.config.Username)
	params.Set("lgpassword", c.config.Password)
	params.Set("lgtoken", loginToken)

	resp, err = c.apiRequest(ctx, params)
	if err != nil {
		metrics.AuthFailures.Inc()
		return fmt.Errorf("login failed: %w", err)
	}

	login := getMap(resp["login"])
	if login == nil {
		return &BadResponseError{Operation: "login", Missing: "login"}
	}

	if result := getString(login["result"]); result != "Success" {
		metrics.AuthFailures.Inc()
		if reason := login["reason"]; reason != nil {
			return fmt.Errorf("login failed: %s - %v", result, reason)
		}
		return fmt.Errorf("login failed: %s", result)
	}

	c.loggedIn = true
	c.tokenExpiry = time.Now().Add(60 * time.Minute)

	c.logger.Info("Logged in to wiki", "username", c.config.Username)

	return nil
}

// getCSRFToken gets a CSRF token for editing, logging in first if needed.
func (c *Client) getCSRFToken(ctx context.Context) (string, error) {
	if c.csrfToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.csrfToken, nil
	}

	if err := c.login(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "csrf")

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to get CSRF token: %w", err)
	}

	query := getMap(resp["query"])
	if query == nil {
		return "", &BadResponseError{Operation: "csrf", Missing: "query"}
	}
	tokens := getMap(query["tokens"])
	if tokens == nil {
		return "", &BadResponseError{Operation: "csrf", Missing: "tokens"}
	}
	csrfToken := getString(tokens["csrftoken"])
	if csrfToken == "" {
		return "", &BadResponseError{Operation: "csrf", Missing: "csrftoken"}
	}

	c.csrfToken = csrfToken
	c.tokenExpiry = time.Now().Add(60 * time.Minute)

	return csrfToken, nil
}

// EnsureLoggedIn logs in when credentials are configured; anonymous reads
// are fine for public wikis, so missing credentials are not an error here.
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	if !c.config.HasCredentials() {
		return nil
	}
	if c.loggedIn && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	return c.login(ctx)
}
