// Package recordstore provides the typed client for the external
// spreadsheet-backed record service.
//
// Every call is a single POST of a JSON body carrying a "type" discriminator.
// The service is treated as always-available: there is no retry or backoff,
// and a failed call surfaces as models.ErrUpstream at the workflow boundary.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// Constants for client configuration
const (
	// DefaultTimeout bounds each record-store request.
	DefaultTimeout = 30 * time.Second
	// maxErrorBodyBytes caps how much of a failing response body is preserved
	// in error messages.
	maxErrorBodyBytes = 512
)

// Opts holds configuration options for the record-store client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the record-store client.
type Option func(*Opts)

// WithBaseURL sets the record service endpoint URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client issues the typed record-store calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a record-store client. The base URL is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("record store base URL not set")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("Record store client created", "timeout", cfg.Timeout)
	return &Client{baseURL: cfg.BaseURL, http: httpClient}, nil
}

// ack is the generic acknowledgment shape returned by mutating calls.
type ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// LogUser records a registered user.
func (c *Client) LogUser(ctx context.Context, discordID, name, email, nxtID string) error {
	body := map[string]string{
		"type":      "logUser",
		"discordID": discordID,
		"name":      name,
		"email":     email,
		"nxtID":     nxtID,
	}
	var resp ack
	return c.post(ctx, body, &resp)
}

// LogVisit records an approved office visit.
func (c *Client) LogVisit(ctx context.Context, discordID, name, reason string, timestamp time.Time) error {
	body := map[string]string{
		"type":      "logVisit",
		"discordID": discordID,
		"name":      name,
		"reason":    reason,
		"timestamp": timestamp.UTC().Format(time.RFC3339),
	}
	var resp ack
	return c.post(ctx, body, &resp)
}

// FindUsers looks up registered users by (partial) name.
func (c *Client) FindUsers(ctx context.Context, name string) ([]models.Candidate, error) {
	body := map[string]string{"type": "findUserByName", "name": name}
	var resp struct {
		Users []models.Candidate `json:"users"`
	}
	if err := c.post(ctx, body, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// CheckUserExists reports whether a Discord ID is already registered.
func (c *Client) CheckUserExists(ctx context.Context, discordID string) (bool, error) {
	body := map[string]string{"type": "checkUserExists", "discordID": discordID}
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.post(ctx, body, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// GetUnapprovedVisits returns visits recorded upstream but not yet approved.
func (c *Client) GetUnapprovedVisits(ctx context.Context) ([]models.Candidate, error) {
	body := map[string]string{"type": "getUnapprovedVisits"}
	var resp struct {
		Visits []models.Candidate `json:"visits"`
	}
	if err := c.post(ctx, body, &resp); err != nil {
		return nil, err
	}
	return resp.Visits, nil
}

// ApproveVisit marks one upstream visit approved.
func (c *Client) ApproveVisit(ctx context.Context, discordID string) error {
	var resp ack
	return c.post(ctx, map[string]string{"type": "approveVisit", "discordID": discordID}, &resp)
}

// DismissVisit marks one upstream visit dismissed.
func (c *Client) DismissVisit(ctx context.Context, discordID string) error {
	var resp ack
	return c.post(ctx, map[string]string{"type": "dismissVisit", "discordID": discordID}, &resp)
}

// ApproveAll approves every upstream unapproved visit.
func (c *Client) ApproveAll(ctx context.Context) (string, error) {
	var resp ack
	if err := c.post(ctx, map[string]string{"type": "approveAll"}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// LogSchedule records a proposed visit for a user on a date.
func (c *Client) LogSchedule(ctx context.Context, discordID, date, status, notes string) error {
	body := map[string]string{
		"type":      "logSchedule",
		"discordID": discordID,
		"date":      date,
		"status":    status,
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp ack
	return c.post(ctx, body, &resp)
}

// UpdateScheduleStatus updates the status of a previously logged schedule.
func (c *Client) UpdateScheduleStatus(ctx context.Context, employeeDiscordID, date, status, notes string) error {
	body := map[string]string{
		"type":              "updateScheduleStatus",
		"employeeDiscordID": employeeDiscordID,
		"date":              date,
		"status":            status,
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp ack
	return c.post(ctx, body, &resp)
}

// post issues one JSON request/response pair. Non-2xx statuses and
// undecodable bodies surface as models.ErrUpstream with the raw body
// preserved for diagnostics.
func (c *Client) post(ctx context.Context, body map[string]string, out interface{}) error {
	callType := body["type"]
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s request: %v", models.ErrUpstream, callType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to build %s request: %v", models.ErrUpstream, callType, err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Record store request", "type", callType)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Record store request failed", "type", callType, "error", err)
		return fmt.Errorf("%w: %s request failed: %v", models.ErrUpstream, callType, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %v", models.ErrUpstream, callType, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("Record store returned error status", "type", callType, "status", resp.StatusCode)
		return fmt.Errorf("%w: %s returned status %d: %s", models.ErrUpstream, callType, resp.StatusCode, truncate(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		slog.Error("Record store returned malformed body", "type", callType, "error", err)
		return fmt.Errorf("%w: %s returned malformed body: %v (body: %s)", models.ErrUpstream, callType, err, truncate(raw))
	}

	slog.Debug("Record store request succeeded", "type", callType)
	return nil
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		return string(raw[:maxErrorBodyBytes]) + "..."
	}
	return string(raw)
}
