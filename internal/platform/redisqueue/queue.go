// Package redisqueue implements the task queue contracts on Redis streams
// with a consumer group. Semantics are at-least-once: a message is acked
// only after the run's outcome is durable, and unacked messages are
// claimed back from dead consumers with a growing idle threshold.
//
// Messages past the delivery budget are moved to a dead-letter stream
// instead of being acked silently, so a repeatedly crashing job is
// inspectable rather than lost.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/task"
)

const (
	// jobIDField is the single field carried by every stream message.
	jobIDField = "job_id"

	// readBlock bounds one blocking read so shutdown is observed promptly.
	readBlock = 5 * time.Second

	// claimInterval is how often a consumer scans for abandoned messages.
	claimInterval = 30 * time.Second
)

// Queue is the Redis streams implementation of task.QueueWriter and
// task.QueueReader.
type Queue struct {
	client *redis.Client
	stream string
	group  string

	// consumer names this process within the group.
	consumer string

	maxDeliveries     int
	redeliveryMinIdle time.Duration

	// mu guards the claim throttle and the jitter source, which are
	// shared by every worker receiving from this queue.
	mu        sync.Mutex
	nextClaim time.Time
	rng       *rand.Rand

	logger *slog.Logger
}

// New connects to Redis and ensures the stream's consumer group exists.
func New(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	// Create the group at the start of the stream; tolerate it existing.
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, fmt.Errorf("creating consumer group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}

	return &Queue{
		client:            client,
		stream:            cfg.Stream,
		group:             cfg.Group,
		consumer:          fmt.Sprintf("worker-%s", uuid.New()),
		maxDeliveries:     cfg.MaxDeliveries,
		redeliveryMinIdle: cfg.RedeliveryMinIdle,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:            logger.With(slog.String("component", "redis_queue")),
	}, nil
}

// Ensure Queue implements the task queue contracts
var (
	_ task.QueueWriter = (*Queue)(nil)
	_ task.QueueReader = (*Queue)(nil)
)

// Enqueue implements task.QueueWriter.Enqueue
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{jobIDField: jobID.String()},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing job %s: %w", jobID, err)
	}

	q.logger.Info("job enqueued", slog.String("job_id", jobID.String()))
	return nil
}

// Close implements task.QueueWriter.Close
func (q *Queue) Close() error {
	return q.client.Close()
}

// Receive implements task.QueueReader.Receive
// It alternates between claiming abandoned deliveries and reading new
// messages, blocking until one is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (*task.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if q.claimDue() {
			if delivery, ok, err := q.claimAbandoned(ctx); err != nil {
				q.logger.Warn("autoclaim scan failed", slog.String("error", err.Error()))
			} else if ok {
				return delivery, nil
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Blocking read timed out with no messages.
				continue
			}
			return nil, fmt.Errorf("reading from stream %s: %w", q.stream, err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				delivery, err := q.toDelivery(ctx, message, 1)
				if err != nil {
					continue
				}
				return delivery, nil
			}
		}
	}
}

// claimDue reports whether it is time for a scan of abandoned deliveries
// and, if so, arms the next one. One scan per interval across however many
// workers share the queue.
func (q *Queue) claimDue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if time.Now().Before(q.nextClaim) {
		return false
	}
	q.nextClaim = time.Now().Add(claimInterval)
	return true
}

// claimAbandoned scans the pending entries list for deliveries whose
// consumer died. The idle threshold grows exponentially with the delivery
// count, with jitter, so a crashing job backs off instead of hot-looping
// through workers. Messages past the delivery budget go to the dead-letter
// stream.
func (q *Queue) claimAbandoned(ctx context.Context) (*task.Delivery, bool, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	for _, entry := range pending {
		if entry.Consumer == q.consumer {
			continue
		}
		if entry.Idle < q.redeliveryDelay(entry.RetryCount) {
			continue
		}

		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  entry.Idle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			// Another consumer raced us to it.
			continue
		}

		message := claimed[0]
		attempt := entry.RetryCount + 1

		if q.maxDeliveries > 0 && attempt > int64(q.maxDeliveries) {
			if err := q.deadLetter(ctx, message, attempt); err != nil {
				q.logger.Error("dead-lettering failed",
					slog.String("message_id", message.ID),
					slog.String("error", err.Error()))
			}
			continue
		}

		delivery, err := q.toDelivery(ctx, message, attempt)
		if err != nil {
			continue
		}
		return delivery, true, nil
	}

	return nil, false, nil
}

// redeliveryDelay computes the idle threshold before delivery n+1:
// minIdle * 2^(n-1), with up to 25% jitter.
func (q *Queue) redeliveryDelay(deliveries int64) time.Duration {
	if deliveries < 1 {
		deliveries = 1
	}
	base := float64(q.redeliveryMinIdle) * math.Pow(2, float64(deliveries-1))

	q.mu.Lock()
	jitter := 1 + q.rng.Float64()*0.25
	q.mu.Unlock()

	return time.Duration(base * jitter)
}

// deadLetter moves an exhausted message to <stream>:dead and acks it.
func (q *Queue) deadLetter(ctx context.Context, message redis.XMessage, attempt int64) error {
	values := map[string]interface{}{"attempts": attempt}
	for k, v := range message.Values {
		values[k] = v
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream + ":dead",
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("writing dead letter: %w", err)
	}
	if err := q.client.XAck(ctx, q.stream, q.group, message.ID).Err(); err != nil {
		return fmt.Errorf("acking dead letter: %w", err)
	}

	q.logger.Error("message dead-lettered after exhausting deliveries",
		slog.String("message_id", message.ID),
		slog.Int64("attempts", attempt))
	return nil
}

// toDelivery converts one stream message into a task delivery. Messages
// without a parsable job ID are acked and skipped.
func (q *Queue) toDelivery(ctx context.Context, message redis.XMessage, attempt int64) (*task.Delivery, error) {
	raw, _ := message.Values[jobIDField].(string)
	jobID, err := uuid.Parse(raw)
	if err != nil {
		q.logger.Error("dropping malformed message",
			slog.String("message_id", message.ID),
			slog.String("job_id_field", raw))
		_ = q.client.XAck(ctx, q.stream, q.group, message.ID).Err()
		return nil, fmt.Errorf("malformed message %s: %w", message.ID, err)
	}

	messageID := message.ID
	return &task.Delivery{
		JobID:   jobID,
		Attempt: attempt,
		Ack: func(ackCtx context.Context) error {
			return q.client.XAck(ackCtx, q.stream, q.group, messageID).Err()
		},
	}, nil
}
