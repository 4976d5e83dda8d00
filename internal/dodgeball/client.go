package dodgeball

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds decision engine connection parameters.
type Config struct {
	APIURL     string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// Client talks to the decision engine's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	version    string
}

var (
	// ErrMissingCredentials is returned when no private API key is configured.
	ErrMissingCredentials = errors.New("dodgeball client missing private api key")
	// ErrMissingAPIURL is returned when no engine base URL is configured.
	ErrMissingAPIURL = errors.New("dodgeball client missing api url")
)

// NewClient constructs a Client if the supplied configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if baseURL == "" {
		return nil, ErrMissingAPIURL
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = "v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		version:    version,
	}, nil
}

// Checkpoint asks the engine to evaluate a checkpoint. A non-nil response
// with Success=false is returned when the engine reports errors in-band.
func (c *Client) Checkpoint(ctx context.Context, req CheckpointRequest) (*CheckpointResponse, error) {
	if c == nil {
		return nil, errors.New("dodgeball client is nil")
	}

	payload := map[string]any{
		"checkpointName": req.CheckpointName,
		"event":          req.Event,
		"options":        req.Options,
	}
	headers := c.correlationHeaders(req.SourceToken, req.SessionID, req.UserID)
	if req.UseVerificationID != "" {
		headers.Set("Dodgeball-Verification-Id", req.UseVerificationID)
	}

	resp, err := c.post(ctx, "/checkpoint", payload, headers)
	if err != nil {
		return nil, fmt.Errorf("dodgeball: checkpoint request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dodgeball: read checkpoint response: %w", err)
	}

	var decoded CheckpointResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("dodgeball: checkpoint status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("dodgeball: decode checkpoint response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && decoded.Success {
		decoded.Success = false
	}
	if !decoded.Success && len(decoded.Errors) == 0 && resp.StatusCode >= http.StatusBadRequest {
		decoded.Errors = Errors{{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}}
	}
	return &decoded, nil
}

// Track submits a server-side event for analysis.
func (c *Client) Track(ctx context.Context, req TrackRequest) error {
	if c == nil {
		return errors.New("dodgeball client is nil")
	}
	if strings.TrimSpace(req.Event.Type) == "" {
		return errors.New("dodgeball: event type is required")
	}
	if req.Event.EventTime == 0 {
		req.Event.EventTime = time.Now().UnixMilli()
	}

	resp, err := c.post(ctx, "/track", req.Event, c.correlationHeaders(req.SourceToken, req.SessionID, req.UserID))
	if err != nil {
		return fmt.Errorf("dodgeball: track request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var decoded struct {
			Errors Errors `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
		if msg := decoded.Errors.String(); msg != "" {
			return fmt.Errorf("dodgeball: track status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("dodgeball: track status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) correlationHeaders(sourceToken, sessionID, userID string) http.Header {
	headers := http.Header{}
	if sourceToken != "" {
		headers.Set("Dodgeball-Source-Token", sourceToken)
	}
	if sessionID != "" {
		headers.Set("Dodgeball-Session-Id", sessionID)
	}
	if userID != "" {
		headers.Set("Dodgeball-Customer-Id", userID)
	}
	return headers
}

func (c *Client) post(ctx context.Context, path string, payload any, headers http.Header) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/" + c.version + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Dodgeball-Secret-Key", c.apiKey)

	return c.httpClient.Do(req)
}
