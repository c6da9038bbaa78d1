package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// send performs one logical call with the given bearer token, retrying
// idempotent requests on network errors and 5xx when retries are enabled.
func (c *Client) send(ctx context.Context, pr *preparedRequest, token string) (*Result, error) {
	attempts := 1
	if pr.idempotent() && c.retryAttempts > 1 {
		attempts = c.retryAttempts
	}
	backoff := c.retryBackoff

	var res *Result
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, &TransportError{Method: pr.Method, URL: c.endpoint(pr.Path), Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		res, err = c.sendOnce(ctx, pr, token)
		if !retryable(err) {
			return res, err
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Request failed, retrying...")
	}
	return res, err
}

// retryable reports whether err is a network failure or a 5xx. A 2xx body that
// is not an envelope is a definite answer and is not retried.
func retryable(err error) bool {
	te, ok := err.(*TransportError)
	if !ok {
		return false
	}
	if errors.Is(te.Err, errNotEnvelope) {
		return false
	}
	return te.Err != nil || te.StatusCode >= 500
}

// sendOnce builds the HTTP request, attaches credentials and classifies the response.
func (c *Client) sendOnce(ctx context.Context, pr *preparedRequest, token string) (*Result, error) {
	target := c.endpoint(pr.Path)
	if len(pr.Query) > 0 {
		target += "?" + pr.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, pr.Method, target, pr.bodyReader())
	if err != nil {
		log.Error().Err(err).Str("method", pr.Method).Str("url", target).Msg("Failed to create request")
		return nil, &TransportError{Method: pr.Method, URL: target, Err: err}
	}
	for k, vs := range pr.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if pr.contentType != "" {
		httpReq.Header.Set("Content-Type", pr.contentType)
	}
	if pr.ResponseType == ResponseJSON && httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", requestID)

	logger := log.With().Str("method", pr.Method).Str("url", target).Str("request_id", requestID).Logger()
	logger.Debug().Bool("authenticated", token != "").Msg("Sending HTTP request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Error().Err(err).Msg("HTTP request failed")
		return nil, &TransportError{Method: pr.Method, URL: target, Err: err}
	}
	defer closeResponseBody(resp)
	logger.Debug().Int("status", resp.StatusCode).Msg("HTTP response received")

	if pr.ResponseType == ResponseBinary {
		return c.readBinary(resp, pr, target)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read response body")
		return nil, &TransportError{Method: pr.Method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	payload, enveloped, err := classify(resp.StatusCode, body)
	if err != nil {
		if te, ok := err.(*TransportError); ok {
			te.Method, te.URL = pr.Method, target
		}
		return nil, err
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Payload: payload, Enveloped: enveloped}, nil
}

// readBinary returns a binary body verbatim. Only the HTTP status is inspected.
func (c *Client) readBinary(resp *http.Response, pr *preparedRequest, target string) (*Result, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Method: pr.Method, URL: target, StatusCode: resp.StatusCode, Body: string(body)}
	}

	res := &Result{StatusCode: resp.StatusCode, Header: resp.Header}
	src := c.limiter.Wrap(resp.Body)
	if pr.Output != nil {
		n, err := io.Copy(pr.Output, src)
		res.Written = n
		if err != nil {
			return nil, &TransportError{Method: pr.Method, URL: target, StatusCode: resp.StatusCode, Err: err}
		}
		return res, nil
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, &TransportError{Method: pr.Method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	res.Body = body
	return res, nil
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 1024*1024)
	_ = resp.Body.Close()
}
