// Package upstream holds the HTTP clients for the LIMS core services
// this gateway consumes: numbering, draft persistence, record CRUD,
// lock arbitration and customer remarks. All clients share one base
// client that handles auth, timeouts and error-envelope decoding.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// Config wires the shared client.
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// Observer receives one entry per completed upstream call. The metrics
// service implements it; a nil observer disables observation.
type Observer interface {
	ObserveUpstream(service, method string, status int, duration time.Duration)
}

// Client is the shared HTTP transport for every upstream service.
type Client struct {
	base     string
	token    string
	http     *http.Client
	observer Observer
	logger   *zap.Logger
}

// NewClient builds the shared transport. observer may be nil.
func NewClient(cfg Config, observer Observer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.ServiceToken,
		http:     &http.Client{Timeout: timeout},
		observer: observer,
		logger:   logger,
	}
}

// doJSON sends an optional JSON body and decodes a JSON response into
// out. service labels the call for logs and metrics.
func (c *Client) doJSON(ctx context.Context, method, path, service string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				"failed to encode upstream request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"failed to build upstream request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, service, out)
}

// do executes a prepared request and decodes the response into out when
// out is non-nil. Error responses are turned into typed errors carrying
// the server's message when one is present.
func (c *Client) do(req *http.Request, service string, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveUpstream(service, req.Method, 0, duration)
		}
		c.logger.Warn("upstream service unreachable",
			zap.String("service", service),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status,
			"upstream service unreachable")
	}
	defer res.Body.Close()

	if c.observer != nil {
		c.observer.ObserveUpstream(service, req.Method, res.StatusCode, duration)
	}
	c.logger.Debug("upstream call",
		zap.String("service", service),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", duration))

	if res.StatusCode >= http.StatusBadRequest {
		return decodeError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status,
			"malformed upstream response")
	}
	return nil
}

// errorEnvelope covers the error shapes the core services emit: either a
// nested error object or flat message/detail fields.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func decodeError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	message := ""
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		for _, candidate := range []string{env.Error.Detail, env.Error.Message, env.Detail, env.Message} {
			if candidate != "" {
				message = candidate
				break
			}
		}
	}

	switch res.StatusCode {
	case http.StatusNotFound:
		if message == "" {
			message = "resource not found upstream"
		}
		return appErrors.Clone(appErrors.ErrNotFound, message)
	case http.StatusConflict:
		if message == "" {
			message = "upstream state conflict"
		}
		return appErrors.Clone(appErrors.ErrConflict, message)
	default:
		if message == "" {
			message = "upstream service error"
		}
		return appErrors.Clone(appErrors.ErrUpstream, message)
	}
}
