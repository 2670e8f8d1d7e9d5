package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"testforge/internal/retry"

	"github.com/bradleyfalzon/ghinstallation/v2"
	jwt "github.com/golang-jwt/jwt/v4"
)

// RepoInfo describes a repository as returned by the GitHub API.
type RepoInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
	Private       bool
}

// TreeEntry is a single blob in a repository tree listing.
type TreeEntry struct {
	Path string
	SHA  string
	Size int
}

// Tree is a recursive repository tree listing.
type Tree struct {
	SHA       string
	Entries   []TreeEntry
	Truncated bool
}

// Client is a typed GitHub API client wrapping go-github.
type Client struct {
	gh           *gh.Client
	retryBackoff []time.Duration
}

// Option configures a Client.
type Option func(*clientConfig)

// AppCredentials holds GitHub App authentication parameters.
type AppCredentials struct {
	ClientID       string
	InstallationID int64
	PrivateKeyPath string
}

type clientConfig struct {
	baseURL      string
	retryBackoff []time.Duration
	app          *AppCredentials
}

// readKeyFile is a variable for testing; defaults to os.ReadFile.
var readKeyFile = os.ReadFile

// WithBaseURL overrides the GitHub API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithRetryBackoff overrides the default retry backoff delays.
func WithRetryBackoff(delays ...time.Duration) Option {
	return func(c *clientConfig) { c.retryBackoff = delays }
}

// WithAppAuth configures GitHub App authentication using a Client ID,
// installation ID, and private key file. When set, token is ignored.
func WithAppAuth(app AppCredentials) Option {
	return func(c *clientConfig) { c.app = &app }
}

// New creates a new GitHub API client. When WithAppAuth is provided, the
// client authenticates as a GitHub App installation (token parameter is
// ignored). Otherwise it authenticates with the given personal access
// token; an empty token yields an anonymous client limited to public
// repositories.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var client *gh.Client

	if cfg.app != nil {
		httpClient, err := newAppHTTPClient(cfg.app, cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub App auth: %w", err)
		}
		client = gh.NewClient(httpClient)
	} else if token != "" {
		client = gh.NewClient(nil).WithAuthToken(token)
	} else {
		client = gh.NewClient(nil)
	}
	if cfg.baseURL != "" {
		client, _ = client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
	}

	return &Client{gh: client, retryBackoff: cfg.retryBackoff}, nil
}

// newAppHTTPClient creates an http.Client with a GitHub App installation
// transport that uses the Client ID (string) as the JWT issuer.
func newAppHTTPClient(app *AppCredentials, baseURL string) (*http.Client, error) {
	keyPath := expandHome(app.PrivateKeyPath)
	keyData, err := readKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", app.PrivateKeyPath, err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	signer := &clientIDSigner{
		clientID: app.ClientID,
		method:   jwt.SigningMethodRS256,
		key:      key,
	}

	atr, err := ghinstallation.NewAppsTransportWithOptions(
		http.DefaultTransport, 0, // appID unused — our signer overrides the issuer
		ghinstallation.WithSigner(signer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating apps transport: %w", err)
	}

	if baseURL != "" {
		atr.BaseURL = baseURL
	}

	itr := ghinstallation.NewFromAppsTransport(atr, app.InstallationID)
	if baseURL != "" {
		itr.BaseURL = baseURL
	}

	return &http.Client{Transport: itr}, nil
}

// clientIDSigner implements ghinstallation.Signer using a string Client ID
// as the JWT issuer instead of a numeric App ID.
type clientIDSigner struct {
	clientID string
	method   jwt.SigningMethod
	key      any
}

func (s *clientIDSigner) Sign(claims jwt.Claims) (string, error) {
	if rc, ok := claims.(*jwt.RegisteredClaims); ok {
		rc.Issuer = s.clientID
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// FetchRepoInfo fetches repository metadata, including the default branch.
func (c *Client) FetchRepoInfo(ctx context.Context, owner, repo string) (RepoInfo, error) {
	return retry.DoVal(ctx, func() (RepoInfo, error) {
		r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return RepoInfo{}, classifyErr(fmt.Errorf("fetching repository: %w", err))
		}
		return RepoInfo{
			Owner:         owner,
			Name:          repo,
			DefaultBranch: r.GetDefaultBranch(),
			Private:       r.GetPrivate(),
		}, nil
	}, c.retryOpts()...)
}

// FetchTree fetches the recursive tree for the given ref (branch name or
// SHA). Only blob entries are returned.
func (c *Client) FetchTree(ctx context.Context, owner, repo, ref string) (Tree, error) {
	return retry.DoVal(ctx, func() (Tree, error) {
		t, _, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true)
		if err != nil {
			return Tree{}, classifyErr(fmt.Errorf("fetching tree: %w", err))
		}
		tree := Tree{SHA: t.GetSHA(), Truncated: t.GetTruncated()}
		for _, e := range t.Entries {
			if e.GetType() != "blob" {
				continue
			}
			tree.Entries = append(tree.Entries, TreeEntry{
				Path: e.GetPath(),
				SHA:  e.GetSHA(),
				Size: e.GetSize(),
			})
		}
		return tree, nil
	}, c.retryOpts()...)
}

// FetchBlob downloads and decodes a blob by SHA.
func (c *Client) FetchBlob(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	return retry.DoVal(ctx, func() ([]byte, error) {
		blob, _, err := c.gh.Git.GetBlob(ctx, owner, repo, sha)
		if err != nil {
			return nil, classifyErr(fmt.Errorf("fetching blob %s: %w", sha, err))
		}
		content := blob.GetContent()
		if blob.GetEncoding() == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
			if err != nil {
				return nil, retry.Permanent(fmt.Errorf("decoding blob %s: %w", sha, err))
			}
			return decoded, nil
		}
		return []byte(content), nil
	}, c.retryOpts()...)
}

// retryOpts returns the retry options for this client.
func (c *Client) retryOpts() []retry.Option {
	if len(c.retryBackoff) > 0 {
		return []retry.Option{retry.WithBackoff(c.retryBackoff...)}
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// classifyErr wraps a go-github error as permanent if it's a client error
// (4xx, except 429), and leaves it retryable for server errors and network
// errors.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
	}
	return err
}
