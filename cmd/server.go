package cmd

import (
	"encoding/json"
	"strconv"

	"github.com/habedi/monitorctl/api"
	"github.com/habedi/monitorctl/db"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/habedi/monitorctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serverCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage monitored servers",
	}
	cmd.AddCommand(serverListCmd(o), serverSaveCmd(o), serverDeleteCmd(o))
	return cmd
}

func serverListCmd(o *rootOptions) *cobra.Command {
	var cached bool
	var name string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List servers and their online state",
		Long:  "List servers. The live list is cached locally; --cached reads that cache without contacting the backend.",
		RunE: withSession(o, false, func(cmd *cobra.Command, args []string, s *session) error {
			var rows []db.Server
			var err error
			if cached {
				rows, err = cachedServers(cmd, s, name)
				if err != nil {
					return err
				}
			} else {
				if err := s.requireLogin(); err != nil {
					return err
				}
				if rows, err = refreshServerCache(cmd, s); err != nil {
					return err
				}
				rows = filterByName(rows, name)
			}
			if len(rows) == 0 {
				cmd.Println("No servers found.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Name", "Address", "User", "Online")
			for _, r := range rows {
				online := "?"
				var info api.ServerInfo
				if err := json.Unmarshal([]byte(r.Data), &info); err == nil {
					online = yesNo(info.IsOnline)
				}
				table.Append([]string{formatID(r.ID), r.Name, r.IP + ":" + strconv.Itoa(r.Port), r.Username, online})
			}
			table.Render()
			return nil
		}),
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Read the local cache instead of the backend")
	cmd.Flags().StringVar(&name, "name", "", "Only show servers whose name contains this text")
	return cmd
}

// refreshServerCache fetches the live inventory and replaces the local cache with it.
// A cache write failure is logged, not returned.
func refreshServerCache(cmd *cobra.Command, s *session) ([]db.Server, error) {
	servers, err := s.api.ListServers(cmd.Context())
	if err != nil {
		return nil, clierr.FromAPI("Failed to list servers", err)
	}
	rows := make([]db.Server, 0, len(servers))
	for _, srv := range servers {
		data, err := json.Marshal(srv)
		if err != nil {
			return nil, clierr.New(clierr.Internal, "Failed to encode server", err)
		}
		rows = append(rows, db.Server{
			ID:       srv.ID,
			Name:     srv.Name,
			IP:       srv.IP,
			Port:     srv.Port,
			Username: srv.Username,
			Data:     string(data),
		})
	}
	if err := s.servers.ReplaceAll(cmd.Context(), rows); err != nil {
		log.Warn().Err(err).Msg("Failed to update the server cache")
	}
	return rows, nil
}

func cachedServers(cmd *cobra.Command, s *session, name string) ([]db.Server, error) {
	var rows []db.Server
	var err error
	if name != "" {
		rows, err = s.servers.SearchByName(cmd.Context(), name)
	} else {
		rows, err = s.servers.List(cmd.Context())
	}
	if err != nil {
		return nil, clierr.New(clierr.Internal, "Failed to read the server cache", err)
	}
	return rows, nil
}

func filterByName(rows []db.Server, name string) []db.Server {
	if name == "" {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		if containsFold(r.Name, name) {
			out = append(out, r)
		}
	}
	return out
}

func serverSaveCmd(o *rootOptions) *cobra.Command {
	var srv api.ServerInfo
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Add a server, or update one when --id is given",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			if err := validation.ValidateNonEmptyString("name", srv.Name); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := validation.ValidateNonEmptyString("ip", srv.IP); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := validation.ValidatePort(srv.Port); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if srv.ID == 0 && srv.Password == "" {
				var err error
				if srv.Password, err = newPrompter(cmd).password("SSH password: "); err != nil {
					return err
				}
			}
			if err := s.api.SaveServer(cmd.Context(), srv); err != nil {
				return clierr.FromAPI("Failed to save server", err)
			}
			cmd.Printf("Server %s saved.\n", srv.Name)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&srv.ID, "id", 0, "ID of the server to update")
	cmd.Flags().StringVar(&srv.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&srv.IP, "ip", "", "Host address")
	cmd.Flags().IntVar(&srv.Port, "port", 22, "SSH port")
	cmd.Flags().StringVarP(&srv.Username, "user", "U", "root", "SSH user")
	cmd.Flags().StringVarP(&srv.Password, "password", "p", "", "SSH password (prompted for when adding)")
	return cmd
}

func serverDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a server",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("server", args[0])
			if err != nil {
				return err
			}
			if err := s.api.DeleteServer(cmd.Context(), id); err != nil {
				return clierr.FromAPI("Failed to delete server", err)
			}
			cmd.Printf("Server %d deleted.\n", id)
			return nil
		}),
	}
}
