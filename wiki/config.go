package wiki

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds MediaWiki connection settings.
type Config struct {
	// BaseURL is the wiki API endpoint (e.g. https://wiki.example.com/api.php)
	BaseURL string

	// Username for bot password authentication (optional, for editing)
	Username string

	// Password for bot password authentication (optional, for editing)
	Password string

	// Timeout for API requests
	Timeout time.Duration

	// UserAgent identifies the client to the wiki
	UserAgent string

	// MaxRetries for failed requests (transport-level only; API-level
	// errors are never retried)
	MaxRetries int
}

// DefaultUserAgent identifies this helper to wiki operators.
const DefaultUserAgent = "git-remote-mediawiki/1.0 (https://github.com/olgasafonova/git-remote-mediawiki)"

// NewConfig builds a Config for the wiki behind the given remote URL.
// Credentials and tuning come from the MEDIAWIKI_* environment variables
// unless already set by per-remote git configuration upstream.
func NewConfig(remoteURL string) (*Config, error) {
	apiURL, err := APIEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if t := os.Getenv("MEDIAWIKI_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	maxRetries := 3
	if r := os.Getenv("MEDIAWIKI_MAX_RETRIES"); r != "" {
		if n, err := strconv.Atoi(r); err == nil && n >= 0 {
			maxRetries = n
		}
	}

	userAgent := os.Getenv("MEDIAWIKI_USER_AGENT")
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Config{
		BaseURL:    apiURL,
		Username:   os.Getenv("MEDIAWIKI_USERNAME"),
		Password:   os.Getenv("MEDIAWIKI_PASSWORD"),
		Timeout:    timeout,
		UserAgent:  userAgent,
		MaxRetries: maxRetries,
	}, nil
}

// APIEndpoint derives the api.php endpoint from a remote URL as git hands
// it to the helper (scheme://host/path, api.php appended when absent).
func APIEndpoint(remoteURL string) (string, error) {
	if remoteURL == "" {
		return "", errors.New("remote URL is required")
	}
	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("remote URL must be http or https")
	}
	if strings.HasSuffix(u.Path, "api.php") {
		return u.String(), nil
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api.php"
	return u.String(), nil
}

// Host returns the hostname portion of the API endpoint, used to
// synthesize author identities for imported revisions.
func (c *Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return "mediawiki"
	}
	return u.Hostname()
}

// HasCredentials returns true if authentication credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}
