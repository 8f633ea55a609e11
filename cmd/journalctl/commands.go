package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reflect-journal/backend/config"
	"github.com/reflect-journal/backend/internal/app"
	"github.com/reflect-journal/backend/internal/models"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newCLILogger(cmd)
			defer logger.Sync()

			_, closeStore, err := app.OpenStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a new question and its speculative answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Service.GenerateNew(ctx, user)
				if err != nil && (out == nil || !out.Degraded) {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				if asJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "#%d %s\n", out.ID, out.Question)
				if out.LLMAnswer != nil {
					fmt.Fprintf(w, "   guess: %s\n", *out.LLMAnswer)
				}
				return nil
			})
		},
	}
}

func newAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <question-id> <text...>",
		Short: "Record the user's answer to a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid question ID %q: %w", args[0], err)
			}
			text := strings.Join(args[1:], " ")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service.SubmitAnswer(ctx, user, id, text); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "answered #%d\n", id)
				return nil
			})
		},
	}
}

func newLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the latest unanswered and latest answered questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				open, err := a.Service.LatestUnanswered(ctx, user)
				if err != nil {
					return err
				}
				answered, err := a.Service.LatestAnswered(ctx, user)
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]*models.Question{
						"unanswered": open,
						"answered":   answered,
					})
				}
				w := cmd.OutOrStdout()
				if open == nil {
					fmt.Fprintln(w, "unanswered: none")
				} else {
					fmt.Fprintf(w, "unanswered: #%d %s\n", open.ID, open.Text)
				}
				if answered == nil {
					fmt.Fprintln(w, "answered:   none")
				} else {
					fmt.Fprintf(w, "answered:   #%d %s\n", answered.ID, answered.Text)
					printAnswers(cmd, answered)
				}
				return nil
			})
		},
	}
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "List answered questions except the latest",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				list, err := a.Service.Archive(ctx, user)
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), list)
				}
				w := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(w, "No archived answers.")
					return nil
				}
				for i := range list {
					q := &list[i]
					fmt.Fprintf(w, "#%d  %s  %s\n", q.ID, q.CreatedAt.Local().Format("2006-01-02 15:04"), q.Text)
					printAnswers(cmd, q)
				}
				return nil
			})
		},
	}
}

func printAnswers(cmd *cobra.Command, q *models.Question) {
	w := cmd.OutOrStdout()
	if q.LLMAnswer != nil {
		fmt.Fprintf(w, "   guess:  %s\n", *q.LLMAnswer)
	}
	if q.Answer != nil {
		fmt.Fprintf(w, "   answer: %s\n", q.Answer.Text)
	}
}
