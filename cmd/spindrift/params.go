package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"spindrift/pkg/commands"
	"spindrift/pkg/config"
	"spindrift/pkg/logger"
	"spindrift/pkg/settings"
)

var dumpFormat string

var paramsCmd = &cobra.Command{
	Use:   "params <user-id>",
	Short: "Show one user's parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(env *offlineEnv) error {
			res, err := commands.ParamsHandler(env.store, env.labels)(cmd.Context(), commands.Request{UserID: userID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <user-id> <param> <value>",
	Short: "Set a parameter for a user",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(env *offlineEnv) error {
			if err := env.store.Record(cmd.Context(), userID, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), env.labels.ParamChanged+"\n", args[1], args[2])
			return nil
		})
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every stored parameter",
	Long: `Print every (user, parameter, value) row, ordered by user and parameter.

Examples:
  spindrift dump
  spindrift dump --format json > settings.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(env *offlineEnv) error {
			entries, err := env.sql.Entries(cmd.Context())
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), dumpFormat, entries)
		})
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "yaml", "output format (yaml|json)")
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func writeEntries(w io.Writer, format string, entries []settings.Entry) error {
	if entries == nil {
		entries = []settings.Entry{}
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

type offlineEnv struct {
	labels config.LabelsConfig
	sql    *settings.SQLStore
	store  settings.Store
}

// withStore opens the configured store without touching Telegram.
func withStore(ctx context.Context, fn func(env *offlineEnv) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateOffline(cfg); err != nil {
		return err
	}

	logCfg := cfg.Logger.ToLoggerConfig()
	logCfg.DisableConsole = true
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sqlStore, err := settings.Open(ctx, cfg.StoragePath())
	if err != nil {
		return err
	}
	defer sqlStore.Close()

	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, closer, err := settings.WithCache(cacheCtx, sqlStore, cfg.Redis, log)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	return fn(&offlineEnv{labels: cfg.CurrentLabels(), sql: sqlStore, store: store})
}
