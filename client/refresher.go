package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRefresher implements TokenRefresher against the backend refresh endpoint.
// It uses its own http.Client, so a refresh never passes through Client.Do.
type HTTPRefresher struct {
	TokenURL string
	HTTP     *http.Client
}

// NewHTTPRefresher creates a refresher posting to tokenURL.
func NewHTTPRefresher(tokenURL string) *HTTPRefresher {
	return &HTTPRefresher{TokenURL: tokenURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPair is the data member of a successful login or refresh response.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// PerformTokenRefresh posts the refresh token and returns the rotated pair.
func (r *HTTPRefresher) PerformTokenRefresh(ctx context.Context, refreshToken string) (string, string, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hc := r.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to post refresh request: %w", err)
	}
	defer closeResponseBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read refresh response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, preview(body))
	}

	env, ok := parseEnvelope(body)
	if !ok {
		return "", "", fmt.Errorf("failed to parse refresh response: %s", preview(body))
	}
	if env.Code != CodeOK {
		return "", "", fmt.Errorf("token refresh API error: %w", &BusinessError{Code: env.Code, Msg: env.Msg})
	}

	var pair TokenPair
	if !env.HasData() {
		return "", "", fmt.Errorf("token refresh response has no data")
	}
	if err := json.Unmarshal(env.Data, &pair); err != nil {
		return "", "", fmt.Errorf("failed to parse refreshed token pair: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}
