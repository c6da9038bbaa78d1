package cmd

import (
	"fmt"
	"strconv"

	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/spf13/cobra"
)

func monitorCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show host metrics",
	}
	cmd.AddCommand(monitorCPUCmd(o))
	return cmd
}

func monitorCPUCmd(o *rootOptions) *cobra.Command {
	var ip string
	var serverID int64
	cmd := &cobra.Command{
		Use:   "cpu",
		Short: "Show recent CPU usage of a host",
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			if ip == "" && serverID == 0 {
				return clierr.New(clierr.Validation, "Either --ip or --server is required", nil)
			}
			if ip == "" {
				var err error
				if ip, err = resolveServerIP(cmd, s, serverID); err != nil {
					return err
				}
			}
			points, err := s.api.CPUHistory(cmd.Context(), ip)
			if err != nil {
				return clierr.FromAPI("Failed to fetch CPU history", err)
			}
			if len(points) == 0 {
				cmd.Printf("No CPU samples for %s.\n", ip)
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "Time", "CPU %")
			var sum float64
			for _, p := range points {
				sum += p.Value
				table.Append([]string{p.Time, strconv.FormatFloat(p.Value, 'f', 1, 64)})
			}
			table.Render()
			cmd.Printf("Average: %.1f%% over %d samples\n", sum/float64(len(points)), len(points))
			return nil
		}),
	}
	cmd.Flags().StringVar(&ip, "ip", "", "Host address")
	cmd.Flags().Int64Var(&serverID, "server", 0, "Server ID; its address is looked up")
	return cmd
}

// resolveServerIP finds the address of server id, preferring the local cache
// and refreshing it from the backend on a miss.
func resolveServerIP(cmd *cobra.Command, s *session, id int64) (string, error) {
	if row, err := s.servers.GetByID(cmd.Context(), id); err == nil && row != nil {
		return row.IP, nil
	}
	rows, err := refreshServerCache(cmd, s)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.ID == id {
			return r.IP, nil
		}
	}
	return "", clierr.New(clierr.NotFound, fmt.Sprintf("Server %d not found", id), nil)
}
