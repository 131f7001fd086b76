package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/printwatch/internal/access"
	"github.com/nerrad567/printwatch/internal/api"
	"github.com/nerrad567/printwatch/internal/infrastructure/config"
	"github.com/nerrad567/printwatch/internal/infrastructure/logging"
)

// locateTimeout bounds a one-off subnet scan.
const locateTimeout = 2 * time.Minute

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "printwatch",
		Short:         "Telegram bot for monitoring and controlling an Ultimaker printer",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $PRINTWATCH_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		serveCmd(&configPath),
		locateCmd(&configPath),
		checkConfigCmd(&configPath),
		tokenCmd(&configPath),
	)
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(*configPath))
		},
	}
}

func locateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Resolve the printer's address once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			locator, err := newLocator(cfg, logging.New(cfg.Logging, version))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), locateTimeout)
			defer cancel()

			addr, err := locator.Resolve(ctx)
			if err != nil {
				return fmt.Errorf("locating printer: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", addr.IP, addr.Source)
			return nil
		},
	}
}

func checkConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and access levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(*configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			registry, err := newRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK: %s\n", path)
			fmt.Fprintf(out, "access levels: %v\n", registry.Levels())
			fmt.Fprintf(out, "notified users: %d\n", len(registry.NotifyRoster()))
			return nil
		},
	}
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a registry user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is not set")
			}
			registry, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			if _, ok := registry.User(userID); !ok {
				return fmt.Errorf("user %d is not in the access configuration", userID)
			}

			if ttl == 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := api.IssueToken(userID, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "registry user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	//nolint:errcheck // flag is defined above
	cmd.MarkFlagRequired("user")
	return cmd
}

// resolveConfigPath picks the --config flag, then PRINTWATCH_CONFIG, then
// the default path.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("PRINTWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newRegistry builds the access registry and checks the bot's levels exist.
func newRegistry(cfg *config.Config) (*access.Registry, error) {
	registry, err := access.FromConfig(cfg.Access)
	if err != nil {
		return nil, fmt.Errorf("building access registry: %w", err)
	}
	if err := registry.RequireLevels(cfg.Bot.MonitorLevel, cfg.Bot.ControlLevel); err != nil {
		return nil, fmt.Errorf("checking bot access levels: %w", err)
	}
	return registry, nil
}
