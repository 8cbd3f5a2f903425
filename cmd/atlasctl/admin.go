package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasbahamas/atlas/internal/config"
	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/push"
	"github.com/atlasbahamas/atlas/internal/server"
	"github.com/atlasbahamas/atlas/internal/store"
)

func (a *app) createAdminCmd() *cobra.Command {
	var b config.BootstrapAdmin
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if b.Username == "" {
				b.Username = a.cfg.Bootstrap.Username
			}
			if b.Password == "" {
				b.Password = a.cfg.Bootstrap.Password
			}
			if b.Email == "" {
				b.Email = a.cfg.Bootstrap.Email
			}
			if b.FullName == "" {
				b.FullName = a.cfg.Bootstrap.FullName
			}
			if !b.Enabled() {
				return errors.New("username and password are required")
			}

			db, err := database.Open(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			u, err := server.CreateAdmin(store.NewUserStore(db), b)
			if errors.Is(err, store.ErrUsernameTaken) {
				return fmt.Errorf("username %q is already taken", b.Username)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (account %s)\n", u.Username, u.AccountNumber)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&b.Username, "username", "", "login name (default: BOOTSTRAP_ADMIN_USERNAME)")
	f.StringVar(&b.Password, "password", "", "password (default: BOOTSTRAP_ADMIN_PASSWORD)")
	f.StringVar(&b.Email, "email", "", "email address")
	f.StringVar(&b.FullName, "full-name", "", "display name")
	return cmd
}

func vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		// Key generation needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}
