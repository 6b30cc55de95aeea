package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sleng75/slimail/pkg/automation"
	filecollab "github.com/sleng75/slimail/pkg/collaborators/file"
	"github.com/sleng75/slimail/pkg/collaborators/webhook"
	"github.com/sleng75/slimail/pkg/eventbus"
	"github.com/sleng75/slimail/pkg/events"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/receivers/queue"
	"github.com/sleng75/slimail/pkg/registry"

	pkgcmd "github.com/sleng75/slimail/pkg/cmd"
)

type EngineConfig struct {
	WorkerID      string
	TickCron      string
	DateSweepCron string
	RedisURL      string
	ContactsDir   string
	ClaimTTL      time.Duration
	MaxRetries    int
}

// Engine wires the matcher, the processor and the receivers together and
// drives the processor from a cron schedule.
type Engine struct {
	config      EngineConfig
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	matcher     *automation.TriggerMatcher
	processor   *automation.EnrollmentProcessor
}

func NewEngine(
	config EngineConfig,
	logger *slog.Logger,
	persist persistence.Persistence,
	eventBus eventbus.EventBus,
) *Engine {
	reg := pkgcmd.NewRegistry(logger)

	contacts := filecollab.NewContactStore(config.ContactsDir)

	deps := protocol.Collaborators{
		Contacts: contacts,
		Email:    filecollab.NewLogEmailSender(logger),
		Mutator:  contacts,
		Webhooks: webhook.NewCaller(logger),
	}

	matcher := automation.NewTriggerMatcher(logger, persist, contacts, eventBus)

	processor := automation.NewEnrollmentProcessor(logger, persist, reg, deps, eventBus, automation.ProcessorConfig{
		WorkerID:   config.WorkerID,
		ClaimTTL:   config.ClaimTTL,
		MaxRetries: config.MaxRetries,
	})

	return &Engine{
		config:      config,
		logger:      logger,
		persistence: persist,
		registry:    reg,
		eventBus:    eventBus,
		matcher:     matcher,
		processor:   processor,
	}
}

// Run starts the event subscription, the queue receiver and the cron loops,
// then blocks until the process is signalled.
func (e *Engine) Run(ctx context.Context) error {
	for _, eventType := range []events.EventType{
		events.ContactSubscribedToListEvent,
		events.ContactTagAddedEvent,
		events.ContactTagRemovedEvent,
		events.ContactUnsubscribedEvent,
	} {
		if err := e.eventBus.Handle(eventType, e.matcher.HandleContactEvent); err != nil {
			return err
		}
	}

	if err := e.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	var receiver *queue.Receiver

	if e.config.RedisURL != "" {
		var err error

		receiver, err = queue.NewReceiver(ctx, e.logger, e.config.RedisURL, "", e.enrollFromQueue)
		if err != nil {
			return err
		}

		receiver.Start(ctx)
	}

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(e.logger.Handler(), slog.LevelDebug))

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	_, err := scheduler.AddFunc(e.config.TickCron, func() {
		processed, err := e.processor.Tick(ctx)
		if err != nil {
			e.logger.ErrorContext(ctx, "Tick failed", "error", err)

			return
		}

		if processed > 0 {
			e.logger.InfoContext(ctx, "Tick finished", "processed", processed)
		}
	})
	if err != nil {
		return err
	}

	_, err = scheduler.AddFunc(e.config.DateSweepCron, func() {
		if err := e.matcher.DateSweep(ctx, time.Now().UTC()); err != nil {
			e.logger.ErrorContext(ctx, "Date sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	e.logger.InfoContext(ctx, "Engine started",
		"tick_cron", e.config.TickCron,
		"date_sweep_cron", e.config.DateSweepCron)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	e.logger.InfoContext(ctx, "Shutting down engine")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	if receiver != nil {
		if err := receiver.Stop(ctx); err != nil {
			e.logger.ErrorContext(ctx, "Failed to stop queue receiver", "error", err)
		}
	}

	return nil
}

func (e *Engine) enrollFromQueue(ctx context.Context, request queue.EnrollmentRequest) error {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, request.WorkflowID)
	if err != nil {
		return err
	}

	_, err = e.matcher.Enroll(ctx, workflow, request.ContactID, "manual")

	return err
}
