package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/habedi/monitorctl/api"
	"github.com/habedi/monitorctl/auth"
	"github.com/habedi/monitorctl/client"
	"github.com/habedi/monitorctl/config"
	"github.com/habedi/monitorctl/db"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/habedi/monitorctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// session is everything a subcommand needs to talk to the backend.
type session struct {
	cfg     *config.Config
	store   *auth.Store
	api     *api.API
	servers db.ServerRepository
	closers []func() error
}

// loadConfig resolves settings and applies the persistent flags on top.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, clierr.New(clierr.Validation, "Invalid configuration: "+err.Error(), err)
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.timeout != 0 {
		cfg.Timeout = o.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, clierr.New(clierr.Validation, "Invalid configuration: "+err.Error(), err)
	}
	return cfg, nil
}

// open loads configuration, opens token and cache storage and builds the API client.
// The caller must call close.
func (o *rootOptions) open(cmd *cobra.Command, extra ...client.Option) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	db.Path = cfg.DBPath
	if err := db.InitDB(); err != nil {
		return nil, clierr.New(clierr.Internal, "Failed to open the local database", err)
	}
	s.closers = append(s.closers, db.CloseDB)
	s.servers = db.NewServerRepository(db.GetDB())

	tokens, err := s.tokenRepository(cmd)
	if err != nil {
		s.close()
		return nil, err
	}

	s.store, err = auth.NewStore(cmd.Context(), tokens)
	if err != nil {
		s.close()
		return nil, clierr.New(clierr.Internal, "Failed to load stored tokens", err)
	}

	opts := append(cfg.ClientOptions(),
		client.WithNavigator(cliNavigator{out: cmd.ErrOrStderr()}),
		client.WithNotifier(cliNotifier{out: cmd.ErrOrStderr()}),
	)
	opts = append(opts, extra...)
	c, err := client.New(cfg.BaseURL, s.store, opts...)
	if err != nil {
		s.close()
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	s.api = api.New(c)
	log.Debug().Str("base_url", cfg.BaseURL).Str("token_backend", cfg.TokenBackend).Msg("Session ready")
	return s, nil
}

func (s *session) tokenRepository(cmd *cobra.Command) (db.TokenRepository, error) {
	if s.cfg.TokenBackend != "redis" {
		return db.NewTokenRepository(db.GetDB()), nil
	}
	rdb, err := db.NewRedisClient(cmd.Context(), s.cfg.RedisURL)
	if err != nil {
		return nil, clierr.New(clierr.Transport, "Failed to connect to the token store", err)
	}
	s.closers = append(s.closers, rdb.Close)
	return db.NewRedisTokenRepository(rdb, s.cfg.RedisKey), nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to release resource")
		}
	}
	s.closers = nil
}

// requireLogin fails fast when no access token is stored.
func (s *session) requireLogin() error {
	if !s.store.Authenticated() {
		return clierr.New(clierr.Session, "Not logged in. Run 'monitorctl login' first.", nil)
	}
	return nil
}

// withSession wraps a subcommand body with session setup and teardown.
func withSession(o *rootOptions, needLogin bool, run func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		if needLogin {
			if err := s.requireLogin(); err != nil {
				return err
			}
		}
		return run(cmd, args, s)
	}
}

// cliNavigator points the user back at the login command.
type cliNavigator struct{ out io.Writer }

func (n cliNavigator) RedirectToLogin() {
	fmt.Fprintln(n.out, "Run 'monitorctl login' to sign in again.")
}

// cliNotifier prints session notices to stderr.
type cliNotifier struct{ out io.Writer }

func (n cliNotifier) NotifyError(message string) {
	fmt.Fprintln(n.out, "Error:", message)
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, clierr.New(clierr.Validation, fmt.Sprintf("Invalid %s ID %q", kind, raw), err)
	}
	if err := validation.ValidateID(kind, id); err != nil {
		return 0, clierr.New(clierr.Validation, err.Error(), err)
	}
	return id, nil
}
