package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sleng75/slimail/pkg/automation"
	"github.com/sleng75/slimail/pkg/cmd"
	"github.com/sleng75/slimail/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// NewValidateCommand validates every stored workflow against the tree and
// step config rules, without starting the engine.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("slimail-engine").With("action", "validate")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			service := automation.NewWorkflowService(logger, persistence, cmd.NewRegistry(logger))

			workflows, err := service.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			invalid := 0

			for _, workflow := range workflows {
				if err := service.Validate(workflow); err != nil {
					invalid++

					_, _ = fmt.Fprintf(os.Stdout, "INVALID  %s (%s): %v\n", workflow.Name, workflow.ID, err)

					continue
				}

				_, _ = fmt.Fprintf(os.Stdout, "ok       %s (%s)\n", workflow.Name, workflow.ID)
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d workflows failed validation", invalid, len(workflows))
			}

			logger.InfoContext(ctx, "All workflows valid", "count", len(workflows))

			return nil
		},
	}
}
