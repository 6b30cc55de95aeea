// Package queue consumes manual enrollment requests from a Redis list. The
// surrounding application pushes {"workflow_id": ..., "contact_id": ...}
// documents; the receiver hands them to the trigger matcher.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultQueue = "slimail:enrollments"

// EnrollmentRequest is one queued manual enrollment.
type EnrollmentRequest struct {
	WorkflowID string `json:"workflow_id"`
	ContactID  string `json:"contact_id"`
}

// EnrollFunc is the callback invoked for each consumed request.
type EnrollFunc func(ctx context.Context, request EnrollmentRequest) error

// Receiver is a blocking-pop consumer on a single Redis list.
type Receiver struct {
	queue  string
	client *redis.Client
	enroll EnrollFunc
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReceiver connects to Redis and prepares the consumer. redisURL follows
// the redis:// URL scheme.
func NewReceiver(ctx context.Context, logger *slog.Logger, redisURL, queue string, enroll EnrollFunc) (*Receiver, error) {
	if queue == "" {
		queue = defaultQueue
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	receiver := &Receiver{
		queue:  queue,
		client: client,
		enroll: enroll,
		logger: logger.With("module", "queue_receiver", "queue", queue),
		stopCh: make(chan struct{}),
	}

	receiver.logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr)

	return receiver, nil
}

// Start launches the consumer loop.
func (r *Receiver) Start(ctx context.Context) {
	r.wg.Add(1)

	go r.consume(ctx)
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting enrollment queue consumer")

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := r.processMessage(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, 1*time.Second, r.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var request EnrollmentRequest
	if err := json.Unmarshal([]byte(message), &request); err != nil {
		r.logger.WarnContext(ctx, "Dropping malformed enrollment request", "message", message)

		return nil
	}

	if request.WorkflowID == "" || request.ContactID == "" {
		r.logger.WarnContext(ctx, "Dropping incomplete enrollment request", "message", message)

		return nil
	}

	if err := r.enroll(ctx, request); err != nil {
		r.logger.ErrorContext(ctx, "Enrollment request failed",
			"workflow_id", request.WorkflowID,
			"contact_id", request.ContactID,
			"error", err)
	}

	return nil
}

// Stop shuts down the consumer and closes the Redis connection.
func (r *Receiver) Stop(ctx context.Context) error {
	close(r.stopCh)
	r.wg.Wait()

	if err := r.client.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
