package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrNoToken is returned when a login response carries no access token.
var ErrNoToken = errors.New("login response did not include an access token")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse accepts both the token pair and the older single-token shape.
type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Token        string `json:"token"`
}

// Login exchanges credentials for a token pair and stores it.
func (a *API) Login(ctx context.Context, username, password string) error {
	var resp loginResponse
	if err := a.post(ctx, "/auth/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	access := resp.AccessToken
	if access == "" {
		access = resp.Token
	}
	if access == "" {
		return ErrNoToken
	}
	if resp.RefreshToken == "" {
		log.Warn().Msg("Login returned no refresh token; the session will end when the access token expires")
	}
	if err := a.c.Store().SetTokens(access, resp.RefreshToken); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	log.Info().Str("username", username).Msg("Logged in")
	return nil
}

// Register creates an account. It does not log in.
func (a *API) Register(ctx context.Context, req RegisterRequest) error {
	if req.ConfirmPassword == "" {
		req.ConfirmPassword = req.Password
	}
	return a.post(ctx, "/auth/register", req, nil)
}

// DeleteAccount removes the current account and forgets its tokens.
func (a *API) DeleteAccount(ctx context.Context, password string) error {
	if err := a.post(ctx, "/user/delete-account", map[string]string{"password": password}, nil); err != nil {
		return err
	}
	return a.Logout()
}

// Logout forgets the stored tokens. Unlike a session expiry it is silent.
func (a *API) Logout() error {
	if err := a.c.Store().ClearTokens(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}
