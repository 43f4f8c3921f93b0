package githubapi

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/google/go-github/v75/github"
)

// Credential sources reported by ResolveToken.
const (
	TokenSourceEnv  = "env"
	TokenSourceNone = "none"
)

// AuthConfig configures how outgoing GitHub requests are authenticated.
// A GitHub App installation is used when AppID is set, otherwise Token is sent as a bearer token.
type AuthConfig struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	// APIBaseURL overrides the installation token endpoint for GitHub Enterprise Server.
	APIBaseURL    string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
}

// RESTClient wraps the go-github REST client.
type RESTClient struct {
	Client *github.Client
}

// ResolveToken finds a personal access token in the named environment variable, falling back to the
// token stored by the gh CLI for host. It returns the token and where it came from.
func ResolveToken(envName, host string) (string, string) {
	if envName != "" {
		if token := strings.TrimSpace(os.Getenv(envName)); token != "" {
			return token, TokenSourceEnv
		}
	}
	if host == "" {
		host = "github.com"
	}
	token, source := auth.TokenForHost(host)
	if strings.TrimSpace(token) == "" {
		return "", TokenSourceNone
	}
	return token, source
}

// NewHTTPClient creates an authenticated HTTP client.
func NewHTTPClient(cfg AuthConfig) (*http.Client, error) {
	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	if cfg.AppID > 0 {
		transport, err := newInstallationTransport(baseTransport, cfg)
		if err != nil {
			return nil, err
		}
		return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("token is required when no app id is configured")
	}
	return &http.Client{
		Transport: &bearerTransport{token: token, base: baseTransport},
		Timeout:   cfg.Timeout,
	}, nil
}

func newInstallationTransport(base http.RoundTripper, cfg AuthConfig) (http.RoundTripper, error) {
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	transport, err := ghinstallation.NewKeyFromFile(base, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}
	if baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.APIBaseURL), "/"); baseURL != "" {
		transport.BaseURL = baseURL
	}
	return transport, nil
}

// bearerTransport adds a personal access token to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	if cloned.Header.Get("User-Agent") == "" {
		cloned.Header.Set("User-Agent", "github-review-stats")
	}
	return t.base.RoundTrip(cloned)
}

// NewGitHubRESTClient creates a go-github client with optional API base URL override.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	if strings.TrimSpace(apiBaseURL) == "" {
		return &RESTClient{Client: client}, nil
	}

	parsedURL, err := parseAbsoluteURL(apiBaseURL, defaultGitHubAPIBaseURL, "github api base url")
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}
	client.BaseURL = parsedURL
	return &RESTClient{Client: client}, nil
}
