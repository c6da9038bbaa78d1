package client

import (
	"bytes"
	"encoding/json"
	"net/http"
)

const (
	// CodeOK is the envelope code for a successful call.
	CodeOK = 200
	// CodeUnauthorized is the envelope code for an expired or missing access token.
	CodeUnauthorized = 401
)

// Envelope is the uniform wrapper returned by every backend endpoint.
type Envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// parseEnvelope decodes body as an envelope. A JSON object without a "code" member is not an envelope.
func parseEnvelope(body []byte) (*Envelope, bool) {
	var probe struct {
		Code *int            `json:"code"`
		Data json.RawMessage `json:"data"`
		Msg  string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Code == nil {
		return nil, false
	}
	return &Envelope{Code: *probe.Code, Data: probe.Data, Msg: probe.Msg}, true
}

// classify turns a completed JSON response into a payload or one of the package errors.
// The payload is the envelope's data, or the whole envelope when data is absent or null.
func classify(status int, body []byte) (payload json.RawMessage, enveloped bool, err error) {
	if status == http.StatusUnauthorized {
		return nil, false, errAuthExpired
	}

	env, ok := parseEnvelope(body)
	if !ok {
		if status < 200 || status >= 300 {
			return nil, false, &TransportError{StatusCode: status, Body: preview(body)}
		}
		return nil, false, &TransportError{StatusCode: status, Body: preview(body), Err: errNotEnvelope}
	}

	switch env.Code {
	case CodeOK:
		if env.HasData() {
			return env.Data, false, nil
		}
		return json.RawMessage(body), true, nil
	case CodeUnauthorized:
		return nil, false, errAuthExpired
	default:
		return nil, false, &BusinessError{Code: env.Code, Msg: env.Msg}
	}
}

func preview(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
