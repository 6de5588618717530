package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"checkout-service/config"

	"go.uber.org/zap"
)

const maxErrorBody = 512

// restClient sends JSON requests to a provider with a bounded number of
// retries and exponential backoff with jitter between attempts.
type restClient struct {
	gateway     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *zap.Logger
}

func newRestClient(gateway string, cfg config.GatewayHTTPConfig, logger *zap.Logger) *restClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &restClient{
		gateway:     gateway,
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger.With(zap.String("gateway", gateway)),
	}
}

// do sends the request and decodes a 2xx body into out. GETs are retried on
// any retryable error; other methods only when the connection was never made,
// since a POST that reached the provider may already have created a resource.
func (c *restClient) do(ctx context.Context, method, url string, body []byte, headers map[string]string, out interface{}) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := c.once(ctx, method, url, body, headers, out)
		if err == nil {
			c.logger.Debug("gateway request ok",
				zap.String("method", method),
				zap.String("url", url),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}

		gwErr, ok := err.(*Error)
		if !ok || !gwErr.Retryable || !replayable(method, gwErr) || attempt >= c.maxRetries {
			return err
		}

		wait := c.backoff(attempt)
		c.logger.Warn("gateway request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("status", gwErr.StatusCode),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Gateway: c.gateway, Message: "request cancelled", Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func replayable(method string, err *Error) bool {
	if method == http.MethodGet || method == http.MethodHead {
		return true
	}
	var opErr *net.OpError
	return errors.As(err.Err, &opErr) && opErr.Op == "dial"
}

func (c *restClient) once(ctx context.Context, method, url string, body []byte, headers map[string]string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &Error{Gateway: c.gateway, Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled caller is not worth retrying; a timeout or reset is.
		return &Error{Gateway: c.gateway, Retryable: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Gateway: c.gateway, StatusCode: resp.StatusCode, Retryable: true, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Gateway:    c.gateway,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Message:    providerMessage(respBytes),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return &Error{Gateway: c.gateway, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
		}
	}
	return nil
}

func (c *restClient) backoff(attempt int) time.Duration {
	base := c.baseBackoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	exp := base * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int64N(int64(exp/2) + 1))
	return exp + jitter
}

// providerMessage pulls a human readable message out of an error body.
// PhonePe uses {"message"}, Razorpay {"error":{"description"}}.
func providerMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Description != "" {
			return parsed.Error.Description
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(bytes.TrimSpace(body))
}
