package cmd

import (
	"fmt"

	"github.com/habedi/monitorctl/api"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/habedi/monitorctl/pkg/validation"
	"github.com/spf13/cobra"
)

func userCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage your account and, as an admin, other users",
	}
	cmd.AddCommand(
		userListCmd(o),
		userAddCmd(o),
		userUpdateCmd(o),
		userDeleteCmd(o),
		userResetPasswordCmd(o),
		userPasswdCmd(o),
		userEditCmd(o),
		userDeleteAccountCmd(o),
	)
	return cmd
}

func userListCmd(o *rootOptions) *cobra.Command {
	q := api.UserQuery{Page: 1, Size: 10}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users (admin)",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			if err := validation.ValidatePageSize(q.Page, q.Size); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			page, err := s.api.ListUsers(cmd.Context(), q)
			if err != nil {
				return clierr.FromAPI("Failed to list users", err)
			}
			if len(page.Records) == 0 {
				cmd.Println("No users found.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Username", "Nickname", "Email", "Role", "Created")
			for _, u := range page.Records {
				table.Append([]string{formatID(u.ID), u.Username, u.Nickname, u.Email, u.Role, u.CreateTime})
			}
			table.Render()
			cmd.Printf("Page %d of %d (%d users)\n", page.Current, page.Pages, page.Total)
			return nil
		}),
	}
	cmd.Flags().IntVar(&q.Page, "page", q.Page, "Page number, starting at 1")
	cmd.Flags().IntVar(&q.Size, "size", q.Size, "Users per page (1-100)")
	cmd.Flags().StringVar(&q.Username, "username", "", "Filter by username substring")
	return cmd
}

func userAddCmd(o *rootOptions) *cobra.Command {
	var u api.NewUser
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			u.Username = args[0]
			if err := validation.ValidateNonEmptyString("username", u.Username); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := s.api.AddUser(cmd.Context(), u); err != nil {
				return clierr.FromAPI("Failed to add user", err)
			}
			cmd.Printf("User %s created.\n", u.Username)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&u.Password, "password", "p", "", "Initial password (the backend default when omitted)")
	cmd.Flags().StringVar(&u.Nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&u.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&u.Role, "role", "", "Role, e.g. ADMIN or USER")
	return cmd
}

func userUpdateCmd(o *rootOptions) *cobra.Command {
	var u api.User
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a user's details (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			u.ID = id
			if err := s.api.UpdateUser(cmd.Context(), u); err != nil {
				return clierr.FromAPI("Failed to update user", err)
			}
			cmd.Printf("User %d updated.\n", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&u.Username, "username", "", "New username")
	cmd.Flags().StringVar(&u.Nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&u.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&u.Role, "role", "", "Role")
	return cmd
}

func userDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			if err := s.api.DeleteUser(cmd.Context(), id); err != nil {
				return clierr.FromAPI("Failed to delete user", err)
			}
			cmd.Printf("User %d deleted.\n", id)
			return nil
		}),
	}
}

func userResetPasswordCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-pwd <id>",
		Short: "Reset a user's password to the backend default (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			if err := s.api.ResetUserPassword(cmd.Context(), id); err != nil {
				return clierr.FromAPI("Failed to reset password", err)
			}
			cmd.Printf("Password of user %d reset.\n", id)
			return nil
		}),
	}
}

func userPasswdCmd(o *rootOptions) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			p := newPrompter(cmd)
			var err error
			if oldPassword == "" {
				if oldPassword, err = p.password("Current password: "); err != nil {
					return err
				}
			}
			if newPassword == "" {
				if newPassword, err = p.password("New password: "); err != nil {
					return err
				}
			}
			if err := validation.ValidateNonEmptyString("new password", newPassword); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := s.api.UpdatePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return clierr.FromAPI("Failed to change password", err)
			}
			cmd.Println("Password changed.")
			return nil
		}),
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "Current password (prompted for when omitted)")
	cmd.Flags().StringVar(&newPassword, "new", "", "New password (prompted for when omitted)")
	return cmd
}

func userEditCmd(o *rootOptions) *cobra.Command {
	var p api.ProfileUpdate
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Update your own profile",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			// Unset flags keep their current values.
			current, err := s.api.Profile(cmd.Context())
			if err != nil {
				return clierr.FromAPI("Failed to fetch profile", err)
			}
			update := api.ProfileUpdate{Nickname: current.Nickname, Email: current.Email, Bio: current.Bio}
			if cmd.Flags().Changed("nickname") {
				update.Nickname = p.Nickname
			}
			if cmd.Flags().Changed("email") {
				update.Email = p.Email
			}
			if cmd.Flags().Changed("bio") {
				update.Bio = p.Bio
			}
			if err := s.api.UpdateProfile(cmd.Context(), update); err != nil {
				return clierr.FromAPI("Failed to update profile", err)
			}
			cmd.Println("Profile updated.")
			return nil
		}),
	}
	cmd.Flags().StringVar(&p.Nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&p.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&p.Bio, "bio", "", "Short biography")
	return cmd
}

func userDeleteAccountCmd(o *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete your own account",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			var err error
			if password == "" {
				if password, err = newPrompter(cmd).password("Password: "); err != nil {
					return err
				}
			}
			ok, err := s.api.CheckPassword(cmd.Context(), password)
			if err != nil {
				return clierr.FromAPI("Failed to verify password", err)
			}
			if !ok {
				return clierr.New(clierr.Validation, "Incorrect password", nil)
			}
			if err := s.api.DeleteAccount(cmd.Context(), password); err != nil {
				return clierr.FromAPI("Failed to delete account", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account deleted.")
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted for when omitted)")
	return cmd
}
