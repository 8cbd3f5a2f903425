// Command atlasctl runs maintenance tasks against an Atlas data directory:
// backups, restore checks and account bootstrap.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlasbahamas/atlas/internal/backup"
	"github.com/atlasbahamas/atlas/internal/config"
	"github.com/atlasbahamas/atlas/internal/logging"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "atlasctl",
		Short:         "Atlas maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.AddCommand(
		a.backupCmd(),
		a.listCmd(),
		a.restoreTestCmd(),
		a.restoreCmd(),
		a.createAdminCmd(),
		vapidKeysCmd(),
	)
	return root
}

func (a *app) backupOptions() backup.Options {
	b := a.cfg.Backup
	return backup.Options{
		Dir:        b.Dir,
		Passphrase: b.Passphrase,
		Gzip:       b.Gzip,
		KeepCount:  b.KeepCount,
		KeepDays:   b.KeepDays,
		S3: backup.S3Config{
			Endpoint:  b.S3Endpoint,
			Bucket:    b.S3Bucket,
			Region:    b.S3Region,
			AccessKey: b.S3AccessKey,
			SecretKey: b.S3SecretKey,
			Prefix:    b.S3Prefix,
		},
	}
}
