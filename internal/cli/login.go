package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/logging"
)

// PasswordEnv is read when --password is not given.
const PasswordEnv = "LIVESYNC_PASSWORD"

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	Email    string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(root *RootOptions) *cobra.Command {
	opts := &LoginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv(PasswordEnv)
			}
			if opts.Email == "" || opts.Password == "" {
				return fmt.Errorf("--email and --password (or %s) are required", PasswordEnv)
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			return login(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")

	return cmd
}

func login(cmd *cobra.Command, cfg *config.Config, opts *LoginOptions) error {
	ctx := cmd.Context()
	logger := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

	var done cleanup
	defer done.run()

	store, err := newSessionStore(ctx, cfg.Session, logger, &done)
	if err != nil {
		return err
	}
	sess, client := newSession(store, cfg.API, nil, logger)

	creds, err := client.Login(ctx, opts.Email, opts.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := sess.Login(ctx, creds, nil); err != nil {
		return err
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		logger.Warn("signed in, but the profile could not be fetched", "error", err)
	} else if err := sess.Login(ctx, creds, &user); err != nil {
		return err
	}

	name := opts.Email
	if u := sess.User(); u != nil && u.Name != "" {
		name = u.Name
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", name)
	return nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

			var done cleanup
			defer done.run()

			store, err := newSessionStore(cmd.Context(), cfg.Session, logger, &done)
			if err != nil {
				return err
			}
			sess, _ := newSession(store, cfg.API, nil, logger)
			if err := sess.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
