package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/habedi/monitorctl/client"
	"github.com/habedi/monitorctl/pkg/clierr"
	"github.com/habedi/monitorctl/pkg/hasher"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func sftpCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sftp",
		Short: "Browse and transfer files on a server",
	}
	cmd.AddCommand(sftpListCmd(o), sftpGetCmd(o), sftpPutCmd(o))
	return cmd
}

func sftpListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <server-id> [remote-dir]",
		Short: "List a remote directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("server", args[0])
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}
			entries, err := s.api.SFTPList(cmd.Context(), id, dir)
			if err != nil {
				return clierr.FromAPI("Failed to list directory", err)
			}
			if len(entries) == 0 {
				cmd.Println("Directory is empty.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "Type", "Permissions", "Size", "Modified", "Name")
			for _, e := range entries {
				size := formatBytes(e.Size)
				if e.IsDir() {
					size = "-"
				}
				modified := ""
				if !e.Mtime.IsZero() {
					modified = e.Mtime.Local().Format(time.DateTime)
				}
				table.Append([]string{e.Type, e.Permissions, size, modified, e.Name})
			}
			table.Render()
			return nil
		}),
	}
}

func sftpGetCmd(o *rootOptions) *cobra.Command {
	var output, hashAlgo string
	var limitRate int64
	var quiet bool
	cmd := &cobra.Command{
		Use:   "get <server-id> <remote-path>",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hashAlgo != "" && !hasher.IsValidHashAlgo(hashAlgo) {
				return clierr.New(clierr.Validation, fmt.Sprintf("Unsupported hash algorithm %q (supported: %v)", hashAlgo, hasher.HashAlgorithms), nil)
			}
			if limitRate < 0 {
				return clierr.New(clierr.Validation, "--limit-rate cannot be negative", nil)
			}
			var extra []client.Option
			if limitRate > 0 {
				extra = append(extra, client.WithRateLimit(limitRate))
			}
			s, err := o.open(cmd, extra...)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.requireLogin(); err != nil {
				return err
			}

			id, err := parseID("server", args[0])
			if err != nil {
				return err
			}
			remote := args[1]
			if output == "" {
				output = path.Base(remote)
			}
			return downloadFile(cmd, s, id, remote, output, hashAlgo, quiet)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file to write (default: the remote file name)")
	cmd.Flags().Int64Var(&limitRate, "limit-rate", 0, "Maximum download speed in bytes per second (0 means unlimited)")
	cmd.Flags().StringVar(&hashAlgo, "hash", "", "Print a checksum of the downloaded file (md5, sha1, sha256 or sha512)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show a progress bar")
	return cmd
}

func downloadFile(cmd *cobra.Command, s *session, id int64, remote, output, hashAlgo string, quiet bool) error {
	tmp := output + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to create local file", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	writers := []io.Writer{f}
	h, err := hasher.New(hashAlgo)
	if hashAlgo != "" {
		if err != nil {
			return clierr.New(clierr.Validation, err.Error(), err)
		}
		writers = append(writers, h)
	}
	if !quiet {
		bar := progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription("Downloading "+path.Base(remote)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionThrottle(500*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSpinnerType(14),
		)
		defer func() { _ = bar.Finish() }()
		writers = append(writers, bar)
	}

	n, err := s.api.SFTPDownload(cmd.Context(), id, remote, io.MultiWriter(writers...))
	if err != nil {
		return clierr.FromAPI("Download failed", err)
	}
	if err := f.Close(); err != nil {
		return clierr.New(clierr.Internal, "Failed to write local file", err)
	}
	if err := os.Rename(tmp, output); err != nil {
		return clierr.New(clierr.Internal, "Failed to move downloaded file into place", err)
	}
	committed = true
	log.Info().Str("remote", remote).Str("local", output).Int64("bytes", n).Msg("Download complete")

	cmd.Printf("Downloaded %s to %s (%s)\n", remote, output, formatBytes(n))
	if hashAlgo != "" {
		cmd.Printf("%s: %s\n", hashAlgo, hasher.Sum(h))
	}
	return nil
}

func sftpPutCmd(o *rootOptions) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "put <server-id> <local-file> <remote-dir>",
		Short: "Upload a local file into a remote directory",
		Args:  cobra.ExactArgs(3),
		RunE: withSession(o, true, func(cmd *cobra.Command, args []string, s *session) error {
			id, err := parseID("server", args[0])
			if err != nil {
				return err
			}
			local, targetDir := args[1], args[2]
			f, err := os.Open(local)
			if err != nil {
				return clierr.New(clierr.NotFound, fmt.Sprintf("Cannot open %s", local), err)
			}
			defer f.Close()

			res, err := s.api.SFTPUpload(cmd.Context(), id, targetDir, filepath.Base(local), f, overwrite)
			if err != nil {
				return clierr.FromAPI("Upload failed", err)
			}
			cmd.Printf("Uploaded %s to %s (%s)\n", local, res.RemotePath, formatBytes(res.Size))
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&overwrite, "overwrite", "f", false, "Replace the remote file if it exists")
	return cmd
}
