package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/cmd"
	"github.com/sleng75/slimail/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:                  "slimail-engine",
		Usage:                 "Run the automation engine: trigger matching and enrollment processing",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the manual enrollment queue (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "contacts-dir",
				Usage:   "Directory holding contact snapshot JSON files",
				Value:   "./data/contacts",
				Sources: cli.EnvVars("CONTACTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "tick-cron",
				Usage:   "Cron expression for the processor tick",
				Value:   "* * * * *",
				Sources: cli.EnvVars("TICK_CRON"),
			},
			&cli.StringFlag{
				Name:    "date-sweep-cron",
				Usage:   "Cron expression for the daily date trigger sweep",
				Value:   "0 3 * * *",
				Sources: cli.EnvVars("DATE_SWEEP_CRON"),
			},
			&cli.DurationFlag{
				Name:    "claim-ttl",
				Usage:   "How long an enrollment claim is held before it is considered abandoned",
				Value:   0,
				Sources: cli.EnvVars("CLAIM_TTL"),
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Retry budget per step before an enrollment fails",
				Value:   0,
				Sources: cli.EnvVars("MAX_RETRIES"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("slimail-engine").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing engine")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "slimail-engine", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			engine := NewEngine(EngineConfig{
				WorkerID:      workerID,
				TickCron:      command.String("tick-cron"),
				DateSweepCron: command.String("date-sweep-cron"),
				RedisURL:      command.String("redis-url"),
				ContactsDir:   command.String("contacts-dir"),
				ClaimTTL:      command.Duration("claim-ttl"),
				MaxRetries:    command.Int("max-retries"),
			}, logger, persistence, eventBus)

			return engine.Run(ctx)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
