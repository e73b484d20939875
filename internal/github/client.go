package github

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

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the base of the GitHub REST API.
	DefaultAPIURL = "https://api.github.com/"

	// DefaultUploadURL is the base for release asset uploads.
	DefaultUploadURL = "https://uploads.github.com/"

	apiVersion = "2022-11-28"
)

// Client talks to the parts of the GitHub REST API used for releases.
type Client struct {
	apiURL    *url.URL
	uploadURL *url.URL
	base      *http.Client
	http      *http.Client
	limiter   *rate.Limiter
}

// Option is a functional option for configuring the Client.
type Option func(*Client) error

// NewClient creates a client authenticated with a personal access token.
func NewClient(token string, opts ...Option) (*Client, error) {
	c := &Client{
		base:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
	if err := WithAPIURL(DefaultAPIURL)(c); err != nil {
		return nil, err
	}
	if err := WithUploadURL(DefaultUploadURL)(c); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.http = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return c, nil
}

// WithAPIURL points the client at a different API base, such as a GitHub
// Enterprise server or a test server.
func WithAPIURL(raw string) Option {
	return func(c *Client) error {
		u, err := parseBase(raw)
		if err != nil {
			return fmt.Errorf("invalid API URL: %w", err)
		}
		c.apiURL = u
		return nil
	}
}

// WithUploadURL sets the base used for asset uploads.
func WithUploadURL(raw string) Option {
	return func(c *Client) error {
		u, err := parseBase(raw)
		if err != nil {
			return fmt.Errorf("invalid upload URL: %w", err)
		}
		c.uploadURL = u
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client. Authentication is layered
// on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.base = hc
		return nil
	}
}

// WithRateLimit paces requests to at most limit per second with the given
// burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) error {
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

func parseBase(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return url.Parse(raw)
}

// Repo identifies a repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

func (r Repo) path(elem ...string) string {
	parts := append([]string{"repos", url.PathEscape(r.Owner), url.PathEscape(r.Name)}, elem...)
	return strings.Join(parts, "/")
}

// Release is a GitHub release.
type Release struct {
	ID         int64   `json:"id"`
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Body       string  `json:"body"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	HTMLURL    string  `json:"html_url"`
	Assets     []Asset `json:"assets"`
}

// NewRelease is the payload for creating a release.
type NewRelease struct {
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish,omitempty"`
	Name            string `json:"name,omitempty"`
	Body            string `json:"body,omitempty"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

// Asset is a file attached to a release.
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ReleaseByTag returns the release for tag. A missing release is an
// *APIError for which IsNotFound is true.
func (c *Client) ReleaseByTag(ctx context.Context, repo Repo, tag string) (*Release, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.apiURL, repo.path("releases", "tags", url.PathEscape(tag)), nil, "")
	if err != nil {
		return nil, err
	}
	var rel Release
	if err := c.do(req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// CreateRelease creates a release. GitHub creates the tag from
// TargetCommitish when it does not exist yet.
func (c *Client) CreateRelease(ctx context.Context, repo Repo, in NewRelease) (*Release, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode release: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL, repo.path("releases"), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	var rel Release
	if err := c.do(req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// DeleteRelease deletes a release. The tag is kept.
func (c *Client) DeleteRelease(ctx context.Context, repo Repo, id int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.apiURL, repo.path("releases", fmt.Sprint(id)), nil, "")
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// DeleteTag deletes the tag reference.
func (c *Client) DeleteTag(ctx context.Context, repo Repo, tag string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.apiURL, repo.path("git", "refs", "tags", url.PathEscape(tag)), nil, "")
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// UploadAsset attaches data to a release as name.
func (c *Client) UploadAsset(ctx context.Context, repo Repo, releaseID int64, name, contentType string, data []byte) (*Asset, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := repo.path("releases", fmt.Sprint(releaseID), "assets") + "?name=" + url.QueryEscape(name)
	req, err := c.newRequest(ctx, http.MethodPost, c.uploadURL, path, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, err
	}
	var asset Asset
	if err := c.do(req, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (c *Client) newRequest(ctx context.Context, method string, base *url.URL, path string, body io.Reader, contentType string) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u := base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, v any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			Method:     req.Method,
			URL:        req.URL.String(),
		}
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
