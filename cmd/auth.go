package cmd

import (
	"time"

	"github.com/habedi/monitorctl/api"
	"github.com/habedi/monitorctl/auth"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/habedi/monitorctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func loginCmd(o *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the monitoring backend",
		Long:  "Log in with a username and password. Missing credentials are prompted for.",
		RunE: withSession(o, false, func(cmd *cobra.Command, args []string, s *session) error {
			p := newPrompter(cmd)
			var err error
			if username == "" {
				if username, err = p.input("Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = p.password("Password: "); err != nil {
					return err
				}
			}
			if err := validation.ValidateNonEmptyString("username", username); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := validation.ValidateNonEmptyString("password", password); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}

			if err := s.api.Login(cmd.Context(), username, password); err != nil {
				return clierr.FromAPI("Login failed", err)
			}
			cmd.Printf("Logged in as %s.\n", username)
			if !s.store.Refreshable() {
				cmd.PrintErrln("Warning: no refresh token was issued; you will need to log in again when this session expires.")
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted for when omitted)")
	return cmd
}

func logoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: withSession(o, false, func(cmd *cobra.Command, args []string, s *session) error {
			if err := s.api.Logout(); err != nil {
				return clierr.New(clierr.Internal, "Failed to clear the stored session", err)
			}
			cmd.Println("Logged out.")
			return nil
		}),
	}
}

func registerCmd(o *rootOptions) *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: withSession(o, false, func(cmd *cobra.Command, args []string, s *session) error {
			p := newPrompter(cmd)
			var err error
			if req.Username == "" {
				if req.Username, err = p.input("Username: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				if req.Password, err = p.password("Password: "); err != nil {
					return err
				}
				if req.ConfirmPassword, err = p.password("Confirm password: "); err != nil {
					return err
				}
			}
			if err := validation.ValidateNonEmptyString("username", req.Username); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
				return clierr.New(clierr.Validation, "Passwords do not match", nil)
			}
			if err := s.api.Register(cmd.Context(), req); err != nil {
				return clierr.FromAPI("Registration failed", err)
			}
			cmd.Printf("Account %s created. Run 'monitorctl login' to sign in.\n", req.Username)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password (prompted for when omitted)")
	cmd.Flags().StringVar(&req.Nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	return cmd
}

func whoamiCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile of the logged-in user",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			u, err := s.api.Profile(cmd.Context())
			if err != nil {
				return clierr.FromAPI("Failed to fetch profile", err)
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Username", "Nickname", "Email", "Role")
			table.Append([]string{formatID(u.ID), u.Username, u.Nickname, u.Email, u.Role})
			table.Render()
			return nil
		}),
	}
}

func authCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect the stored session",
	}
	cmd.AddCommand(authStatusCmd(o))
	return cmd
}

func authStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored and when its access token expires",
		RunE: withSession(o, false, func(cmd *cobra.Command, args []string, s *session) error {
			if !s.store.Authenticated() {
				cmd.Println("Not logged in.")
				return nil
			}
			cmd.Println("Logged in.")
			cmd.Println("Refresh token:", yesNo(s.store.Refreshable()))

			info, err := auth.InspectToken(s.store.AccessToken())
			if err != nil {
				log.Debug().Err(err).Msg("Access token is not a readable JWT")
				cmd.Println("Access token expiry: unknown")
				return nil
			}
			if info.Subject != "" {
				cmd.Println("Subject:", info.Subject)
			}
			if !info.HasExpiry() {
				cmd.Println("Access token expiry: none")
				return nil
			}
			now := time.Now()
			switch {
			case info.Expired(now):
				cmd.Printf("Access token expired at %s; it will be refreshed on the next request.\n", info.ExpiresAt.Format(time.RFC3339))
			case info.ExpiresWithin(now, auth.ExpiryMargin):
				cmd.Printf("Access token expires soon, at %s.\n", info.ExpiresAt.Format(time.RFC3339))
			default:
				cmd.Printf("Access token expires at %s.\n", info.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
}
