package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// ErrNoServer is returned by NewClient when no server URL is configured.
var ErrNoServer = errors.New("plugin server URL is not configured")

// Client talks to the plugin distribution endpoint.
type Client struct {
	baseURL *url.URL
	base    *http.Client
	http    *http.Client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. When a token source is
// given, authentication is layered on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.base = hc
	}
}

// NewClient creates a client for the server at baseURL. Requests carry the
// token from ts as a bearer credential; a nil ts sends none.
func NewClient(baseURL string, ts oauth2.TokenSource, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoServer
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid plugin server URL: %w", err)
	}

	c := &Client{
		baseURL: u,
		base:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = c.base
	if ts != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
		c.http = oauth2.NewClient(ctx, ts)
	}
	return c, nil
}

// APIError is a non-2xx response from the plugin server.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plugin server %s: %s: %s", e.Path, e.Status, strings.TrimSpace(e.Body))
}

// List returns the plugins available to the authenticated user.
func (c *Client) List(ctx context.Context) ([]model.PluginInfo, error) {
	var out struct {
		List []model.PluginInfo `json:"list"`
	}
	if err := c.postJSON(ctx, "plugin_list", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// Readme returns the README markdown of a plugin.
func (c *Client) Readme(ctx context.Context, repo string) (string, error) {
	var out struct {
		Readme string `json:"readme"`
	}
	if err := c.postJSON(ctx, "plugin_readme", repoRequest{Repo: repo}, &out); err != nil {
		return "", err
	}
	return out.Readme, nil
}

// Download returns the ZIP bundle of a plugin.
func (c *Client) Download(ctx context.Context, repo string) ([]byte, error) {
	resp, err := c.post(ctx, "plugin_download", repoRequest{Repo: repo})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin bundle: %w", err)
	}
	return data, nil
}

type repoRequest struct {
	Repo string `json:"repo"`
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// post sends in as a JSON body and returns the response for a 2xx status.
// The caller closes the body.
func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return nil, err
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			Path:       "/" + path,
		}
	}
	return resp, nil
}
