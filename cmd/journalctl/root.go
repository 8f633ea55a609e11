package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reflect-journal/backend/config"
	"github.com/reflect-journal/backend/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "journalctl",
		Short:         "Operate the reflection journal",
		Long:          "journalctl generates questions, records answers, and prints a user's journal using the same configuration as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("user", "", "User ID to act as (required by journal commands)")
	root.PersistentFlags().Bool("json", false, "Print results as JSON")
	root.PersistentFlags().Bool("verbose", false, "Log at info level to stderr")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newAnswerCmd())
	root.AddCommand(newLatestCmd())
	root.AddCommand(newArchiveCmd())
	return root
}

func newCLILogger(cmd *cobra.Command) *zap.Logger {
	level := zapcore.WarnLevel
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// withApp loads configuration, opens the journal, and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newCLILogger(cmd)
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireUser(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		return "", fmt.Errorf("--user is required")
	}
	return user, nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
