package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ResponseType selects how a response body is handled.
type ResponseType int

const (
	// ResponseJSON responses are parsed as envelopes.
	ResponseJSON ResponseType = iota
	// ResponseBinary responses bypass envelope parsing and are returned verbatim.
	ResponseBinary
)

// Request describes one outbound API call. It is kept intact so the call can be replayed.
type Request struct {
	Method string
	// Path is resolved against the client's base URL unless it is an absolute URL.
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded, except []byte which is sent as is with ContentType.
	Body        any
	ContentType string

	ResponseType ResponseType
	// Output receives binary bodies as they stream in. When nil the body is buffered into Result.Body.
	Output io.Writer
}

// Result is the outcome of a successful call.
type Result struct {
	StatusCode int
	Header     http.Header
	// Payload is the envelope's data, or the full envelope when Enveloped is set.
	Payload   json.RawMessage
	Enveloped bool
	// Body holds a buffered binary response.
	Body []byte
	// Written counts bytes streamed into Request.Output.
	Written int64
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Payload) == 0 {
		return fmt.Errorf("no JSON payload to decode")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

// Envelope returns the full envelope when the payload fell back to it.
func (r *Result) Envelope() (*Envelope, bool) {
	if r == nil || !r.Enveloped {
		return nil, false
	}
	env, ok := parseEnvelope(r.Payload)
	return env, ok
}

// preparedRequest is a Request with its body encoded once, so replays send identical bytes.
type preparedRequest struct {
	*Request
	body        []byte
	contentType string
}

func prepare(req *Request) (*preparedRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	cp := *req
	if cp.Method == "" {
		cp.Method = http.MethodGet
	}
	pr := &preparedRequest{Request: &cp}
	switch b := cp.Body.(type) {
	case nil:
	case []byte:
		pr.body = b
		pr.contentType = cp.ContentType
	case string:
		pr.body = []byte(b)
		pr.contentType = cp.ContentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		pr.body = data
		pr.contentType = "application/json"
	}
	return pr, nil
}

func (pr *preparedRequest) bodyReader() io.Reader {
	if pr.body == nil {
		return nil
	}
	return bytes.NewReader(pr.body)
}

func (pr *preparedRequest) idempotent() bool {
	switch strings.ToUpper(pr.Method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
