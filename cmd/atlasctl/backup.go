package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/atlasbahamas/atlas/internal/backup"
	"github.com/atlasbahamas/atlas/internal/database"
)

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database into the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			m := backup.NewManager(db, a.backupOptions(), a.logger)
			arc, err := m.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", arc.Path, humanize.Bytes(uint64(arc.Size)))
			if a.cfg.Backup.S3Enabled() && !arc.Uploaded {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: upload failed, archive kept locally")
			}
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local backup archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := backup.NewManager(nil, a.backupOptions(), a.logger).List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backups in", a.cfg.Backup.Dir)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tAGE\tENCRYPTED")
			for _, arc := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", arc.Name, humanize.Bytes(uint64(arc.Size)), humanize.Time(arc.ModTime), arc.Encrypted)
			}
			return tw.Flush()
		},
	}
}

// pickArchive resolves --file, falling back to the newest archive.
func (a *app) pickArchive(m *backup.Manager, file string) (string, error) {
	if file != "" {
		return file, nil
	}
	latest, err := m.Latest()
	if err != nil {
		return "", err
	}
	return latest.Path, nil
}

func (a *app) restoreTestCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "restore-test",
		Short: "Decrypt and verify an archive without touching the live database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := backup.NewManager(nil, a.backupOptions(), a.logger)
			path, err := a.pickArchive(m, file)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := m.RestoreTest(path); err != nil {
				return fmt.Errorf("restore test %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%s)\n", path, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "archive to test (default: latest)")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	var (
		file   string
		target string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the database with a verified archive (server must be stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("restore overwrites the database; pass --yes to continue")
			}
			m := backup.NewManager(nil, a.backupOptions(), a.logger)
			path, err := a.pickArchive(m, file)
			if err != nil {
				return err
			}
			if target == "" {
				target = a.cfg.DatabasePath
			}
			if err := m.Restore(path, target); err != nil {
				return err
			}
			a.logger.Info("database restored", "archive", path, "target", target)
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", path, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "archive to restore (default: latest)")
	cmd.Flags().StringVar(&target, "target", "", "database path (default: DATABASE_PATH)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm overwriting the database")
	return cmd
}
