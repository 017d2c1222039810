// Package gateclient is the client SDK for the IAhome activation API. It
// drives the activate / check / open flow for one signed-in user and keeps an
// optimistic session cache of unlocked modules.
package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable indicates the activation API is unreachable or its circuit
// breaker is open.
var ErrUnavailable = errors.New("activation API unavailable")

// ErrNotActivated indicates the server refused a token because the module is
// not unlocked for the user.
var ErrNotActivated = errors.New("module not activated")

// Grant is an access token response. The server may answer with a signed URL,
// a bare token, or both; both fields filled means URL already carries the
// token.
type Grant struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Activation mirrors one server-side activation record.
type Activation struct {
	UserID      string     `json:"userId"`
	ModuleID    string     `json:"moduleId"`
	Active      bool       `json:"active"`
	Source      string     `json:"source"`
	AccessLevel string     `json:"accessLevel"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// BreakerThreshold is the consecutive failure count that opens the
	// token circuit. Zero uses the default of 5.
	BreakerThreshold uint32
	// BreakerTimeout is how long the circuit stays open. Zero uses 30s.
	BreakerTimeout time.Duration
}

// Client talks to the activation API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[*Grant]
}

// NewClient creates a new activation API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateclient: base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Grant](gobreaker.Settings{
		Name:    "module-access-token",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Business refusals are not transport failures and must not
			// open the circuit.
			if err == nil {
				return true
			}
			var rejected *ActivationRejectedError
			return errors.Is(err, ErrNotActivated) || errors.As(err, &rejected)
		},
	})
	return c, nil
}

// CheckActivation reports whether the module is unlocked for the user.
func (c *Client) CheckActivation(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error) {
	var out struct {
		IsActivated bool `json:"isActivated"`
	}
	err := c.post(ctx, "/api/v1/check-module-activation", map[string]any{
		"userId":   userID.String(),
		"moduleId": moduleID,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.IsActivated, nil
}

// Activate requests an activation for the user. The declared cost is what the
// client displayed; the server's catalog price is authoritative.
func (c *Client) Activate(ctx context.Context, userID uuid.UUID, email, moduleID string, cost int) (*Activation, error) {
	var out struct {
		Success    bool       `json:"success"`
		Error      string     `json:"error"`
		Activation Activation `json:"activation"`
	}
	err := c.post(ctx, "/api/v1/activate-module", map[string]any{
		"userId":    userID.String(),
		"userEmail": email,
		"moduleId":  moduleID,
		"moduleCost": cost,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &ActivationRejectedError{ModuleID: moduleID, Message: out.Error}
	}
	return &out.Activation, nil
}

// AccessToken requests a fresh access grant. Grants are never cached; every
// open of a module asks for a new one.
func (c *Client) AccessToken(ctx context.Context, userID uuid.UUID, email, moduleID string) (*Grant, error) {
	grant, err := c.breaker.Execute(func() (*Grant, error) {
		var out struct {
			Token string `json:"token"`
			URL   string `json:"url"`
			Error string `json:"error"`
		}
		err := c.post(ctx, "/api/v1/module-access-token", map[string]any{
			"userId":    userID.String(),
			"userEmail": email,
			"moduleId":  moduleID,
		}, &out)
		if err != nil {
			return nil, err
		}
		if out.Token == "" && out.URL == "" {
			return nil, fmt.Errorf("gateclient: empty access grant for module %q", moduleID)
		}
		return &Grant{Token: out.Token, URL: out.URL}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return grant, err
}

// ListActivations returns the user's active records.
func (c *Client) ListActivations(ctx context.Context, userID uuid.UUID) ([]Activation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/users/"+userID.String()+"/activations", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Activations []Activation `json:"activations"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Activations, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.apiError(req, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateclient: decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// apiError maps an error response onto the client error types. The server
// message is carried verbatim so the caller can surface it unchanged.
func (c *Client) apiError(req *http.Request, status int, raw []byte) error {
	var body struct {
		Error      string `json:"error"`
		RedirectTo string `json:"redirectTo"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized:
		return &AuthRequiredError{RedirectTo: body.RedirectTo}
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrNotActivated, body.Error)
	case http.StatusPaymentRequired, http.StatusNotFound, http.StatusBadRequest, http.StatusConflict:
		return &ActivationRejectedError{Message: body.Error}
	default:
		c.logger.Warn("activation API error",
			"path", req.URL.Path,
			"status", status,
			"message", body.Error,
		)
		return fmt.Errorf("%w: %s", ErrUnavailable, body.Error)
	}
}
