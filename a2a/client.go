package a2a

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
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Token is sent as a bearer token when non-empty.
	Token string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is not set.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}

// Client talks to a remote a2aflow server.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		Timeout:   30 * time.Second,
		UserAgent: "a2aflow-client",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      opts.Token,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Error is returned for non-2xx responses. Body holds the decoded error body
// when the server sent one, including partial results of failed runs.
type Error struct {
	StatusCode int
	Body       ErrorBody
}

func (e *Error) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Body.Code != "" {
		return fmt.Sprintf("a2a: %d %s: %s", e.StatusCode, e.Body.Code, msg)
	}
	return fmt.Sprintf("a2a: %d: %s", e.StatusCode, msg)
}

// Card fetches the Agent Card.
func (c *Client) Card(ctx context.Context) (*AgentCard, error) {
	var card AgentCard
	if err := c.do(ctx, http.MethodGet, DiscoveryPath, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// Health fetches the health report.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, HealthPath, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Workflow fetches the info document of the workflow mounted at path.
func (c *Client) Workflow(ctx context.Context, path string) (*WorkflowInfo, error) {
	var info WorkflowInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Invoke posts req to the generic invoke endpoint.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	var resp InvokeResponse
	if err := c.do(ctx, http.MethodPost, InvokePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvokePath posts input directly to the workflow mounted at path.
func (c *Client) InvokePath(ctx context.Context, path string, input map[string]any) (*InvokeResponse, error) {
	if input == nil {
		input = map[string]any{}
	}
	var resp InvokeResponse
	if err := c.do(ctx, http.MethodPost, path, input, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	endpoint, err := c.resolve(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("a2a: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("a2a: build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("a2a: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("a2a: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if jerr := json.Unmarshal(data, &apiErr.Body); jerr != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("a2a: decode response: %w", err)
	}

	return nil
}

func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("a2a: invalid url %q: %w", c.baseURL+path, err)
	}
	return u.String(), nil
}
