package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

const defaultDaemonAddr = "http://127.0.0.1:7433"

// apiError is an error response from the daemon.
type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// reason is the most specific message the daemon gave.
func (e *apiError) reason() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// rejected reports whether the daemon refused the input rather than failed.
func (e *apiError) rejected() bool {
	return e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity
}

// client talks to the daemon's /v1 API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: base, http: &http.Client{Timeout: 90 * time.Second}}
}

// daemonAddr resolves the daemon URL from config, falling back to the default.
func daemonAddr() string {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return defaultDaemonAddr
	}
	host := cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + strconv.Itoa(cfg.Daemon.Port)
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *client) healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil) == nil
}

func (c *client) create(ctx context.Context) (session.View, error) {
	var v session.View
	err := c.do(ctx, http.MethodPost, "/v1/onboarding", nil, &v)
	return v, err
}

func (c *client) get(ctx context.Context, id string) (session.View, error) {
	var v session.View
	err := c.do(ctx, http.MethodGet, "/v1/onboarding/"+id, nil, &v)
	return v, err
}

// act posts an onboarding operation such as "answer" or "skip".
func (c *client) act(ctx context.Context, id, op string, body any) (session.View, error) {
	var v session.View
	err := c.do(ctx, http.MethodPost, "/v1/onboarding/"+id+"/"+op, body, &v)
	return v, err
}

type recommendationResponse struct {
	Recommendation onboarding.Recommendation `json:"recommendation"`
	CallToAction   string                    `json:"call_to_action"`
	Narrative      string                    `json:"narrative"`
}

func (c *client) recommendation(ctx context.Context, id string) (recommendationResponse, error) {
	var rec recommendationResponse
	err := c.do(ctx, http.MethodGet, "/v1/onboarding/"+id+"/recommendation", nil, &rec)
	return rec, err
}
