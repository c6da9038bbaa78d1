package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/habedi/monitorctl/db"
	"github.com/rs/zerolog/log"
)

// ErrMissingAccessToken is returned when a pair without an access token is stored.
var ErrMissingAccessToken = errors.New("access token is required")

// Store keeps the current token pair in memory and writes every change
// through to a db.TokenRepository. It satisfies client.TokenStore.
type Store struct {
	mu      sync.RWMutex
	repo    db.TokenRepository
	access  string
	refresh string
}

// NewStore seeds a Store from whatever pair repo holds. A nil repo keeps tokens in memory only.
func NewStore(ctx context.Context, repo db.TokenRepository) (*Store, error) {
	s := &Store{repo: repo}
	if repo == nil {
		return s, nil
	}
	token, err := repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve token record: %w", err)
	}
	switch {
	case token == nil:
	case token.AccessToken == "":
		log.Warn().Msg("Stored token pair has no access token, ignoring it")
	default:
		s.access, s.refresh = token.AccessToken, token.RefreshToken
	}
	return s, nil
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Authenticated reports whether an access token is held.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// Refreshable reports whether the session can be renewed without a new login.
func (s *Store) Refreshable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != "" && s.refresh != ""
}

// SetTokens replaces the pair. An empty refreshToken gives a session that
// ends at its first authentication failure. The in-memory pair is updated
// even when persisting fails, so the running process keeps a usable session.
// Memory and repository change under one lock so they never disagree.
func (s *Store) SetTokens(accessToken, refreshToken string) error {
	if accessToken == "" {
		return ErrMissingAccessToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = accessToken, refreshToken

	if s.repo == nil {
		return nil
	}
	if err := s.repo.Upsert(context.Background(), &db.Token{AccessToken: accessToken, RefreshToken: refreshToken}); err != nil {
		return fmt.Errorf("failed to save token pair: %w", err)
	}
	return nil
}

// ClearTokens forgets the pair. Clearing an empty store is not an error.
func (s *Store) ClearTokens() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""

	if s.repo == nil {
		return nil
	}
	if err := s.repo.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear token pair: %w", err)
	}
	return nil
}
