package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/resilience"
)

// Task represents a job to be processed asynchronously.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
	Attempt        int
}

// Publisher is satisfied by Enqueuer and lets callers swap in fakes.
type Publisher interface {
	Enqueue(ctx context.Context, t Task) error
}

// Enqueuer publishes tasks to Redis backed queues.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue inserts the task into the queue. If an idempotency key is supplied the
// task is only enqueued once within the configured deduplication window.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}
	msg := taskMessage{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		EnqueuedAt:  time.Now().UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 10
	}
	msg.AvailableAt = time.Now().Add(t.Delay).UnixNano()

	keys := keyspace{prefix: e.Prefix, kind: kind}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, keys.dedup(msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := e.R.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err(); err != nil {
		return err
	}
	Enqueued.WithLabelValues(kind).Inc()
	return nil
}

// Worker consumes tasks for a specific kind. Tasks that exhaust MaxAttempts
// are pushed onto the kind's dead-letter list.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	Logger            zerolog.Logger
}

// Run starts processing tasks until the context is cancelled. Active tasks are
// tracked in a processing set so a crashed worker's tasks are redelivered once
// their visibility timeout lapses.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	poll := w.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	keys := keyspace{prefix: w.Prefix, kind: kind}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	requeueTicker := time.NewTicker(time.Second)
	defer requeueTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requeueTicker.C:
			if err := w.requeueExpired(ctx, keys); err != nil && ctx.Err() == nil {
				w.Logger.Warn().Err(err).Str("kind", kind).Msg("requeue expired tasks")
			}
			w.observeDepth(ctx, keys)
		default:
		}

		// A task is only claimed once a slot is free, so its visibility
		// deadline covers the handler and not time spent queued locally.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		msg, raw, ok, err := w.claim(ctx, keys, visibility)
		if err != nil || !ok {
			<-sem
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.Logger.Error().Err(err).Str("kind", kind).Msg("claim task")
			}
			sleepCtx(ctx, poll)
			continue
		}

		wg.Add(1)
		go func(raw string, m taskMessage) {
			defer func() { <-sem }()
			defer wg.Done()
			jobCtx, cancel := context.WithTimeout(ctx, visibility)
			defer cancel()
			started := time.Now()
			err := w.Handler(jobCtx, Task{Kind: kind, Payload: m.Payload, IdempotencyKey: m.Key, Attempt: m.Attempt, MaxAttempts: m.MaxAttempts})
			HandlerSeconds.WithLabelValues(kind).Observe(time.Since(started).Seconds())
			// Bookkeeping must survive the job context expiring.
			bookCtx := context.WithoutCancel(ctx)
			if err != nil {
				w.Logger.Warn().Err(err).Str("kind", kind).Int("attempt", m.Attempt).Msg("task failed")
				w.handleFailure(bookCtx, keys, raw, m, err, retryBase)
				return
			}
			Processed.WithLabelValues(kind, "ok").Inc()
			w.ack(bookCtx, keys, raw, m)
		}(raw, msg)
	}
}

// claim pops the next due task and records it in the processing set.
func (w Worker) claim(ctx context.Context, keys keyspace, visibility time.Duration) (taskMessage, string, bool, error) {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, keys.ready(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now), Count: 1}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return taskMessage{}, "", false, err
	}
	if len(due) == 0 {
		return taskMessage{}, "", false, nil
	}
	removed, err := w.R.ZRem(ctx, keys.ready(), due[0]).Result()
	if err != nil {
		return taskMessage{}, "", false, err
	}
	if removed == 0 {
		// Another worker won the race.
		return taskMessage{}, "", false, nil
	}
	msg, err := decodeMessage(due[0])
	if err != nil {
		w.Logger.Error().Err(err).Msg("drop undecodable task")
		return taskMessage{}, "", false, nil
	}
	msg.Attempt++
	encoded, err := json.Marshal(msg)
	if err != nil {
		return taskMessage{}, "", false, err
	}
	raw := string(encoded)
	deadline := time.Now().Add(visibility).UnixNano()
	if err := w.R.ZAdd(ctx, keys.processing(), redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
		return taskMessage{}, "", false, err
	}
	return msg, raw, true, nil
}

func (w Worker) handleFailure(ctx context.Context, keys keyspace, raw string, msg taskMessage, cause error, base time.Duration) {
	_ = w.R.ZRem(ctx, keys.processing(), raw).Err()
	msg.LastError = cause.Error()
	exhausted := msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts
	if exhausted || resilience.IsPermanent(cause) {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := w.R.LPush(ctx, keys.dlq(), encoded).Err(); err != nil {
			w.Logger.Error().Err(err).Str("kind", msg.Kind).Msg("push to dead-letter list")
		}
		if msg.Key != "" {
			_ = w.R.Del(ctx, keys.dedup(msg.Key)).Err()
		}
		Processed.WithLabelValues(msg.Kind, "dead").Inc()
		w.Logger.Error().Str("kind", msg.Kind).Str("key", msg.Key).Int("attempts", msg.Attempt).Msg("task moved to dead-letter list")
		return
	}
	Processed.WithLabelValues(msg.Kind, "retry").Inc()
	delay := resilience.Backoff(base, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	encoded, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err()
}

func (w Worker) ack(ctx context.Context, keys keyspace, raw string, msg taskMessage) {
	_ = w.R.ZRem(ctx, keys.processing(), raw).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, keys.dedup(msg.Key)).Err()
	}
}

func (w Worker) requeueExpired(ctx context.Context, keys keyspace) error {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, keys.processing(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		removed, err := w.R.ZRem(ctx, keys.processing(), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

func (w Worker) observeDepth(ctx context.Context, keys keyspace) {
	if n, err := w.R.ZCard(ctx, keys.ready()).Result(); err == nil {
		ReadyDepth.WithLabelValues(keys.kind).Set(float64(n))
	}
	if n, err := w.R.LLen(ctx, keys.dlq()).Result(); err == nil {
		DeadLetterDepth.WithLabelValues(keys.kind).Set(float64(n))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' || c == '_' || c == ':' {
			continue
		}
		return ""
	}
	return kind
}

type keyspace struct {
	prefix string
	kind   string
}

func (k keyspace) base() string {
	if k.prefix == "" {
		return "queue"
	}
	return k.prefix
}

func (k keyspace) ready() string      { return fmt.Sprintf("%s:queue:%s", k.base(), k.kind) }
func (k keyspace) processing() string { return fmt.Sprintf("%s:%s:processing", k.base(), k.kind) }
func (k keyspace) dlq() string        { return fmt.Sprintf("%s:%s:dlq", k.base(), k.kind) }
func (k keyspace) dedup(key string) string {
	return fmt.Sprintf("%s:dedup:%s:%s", k.base(), k.kind, key)
}

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}

type taskMessage struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
	EnqueuedAt  int64  `json:"enqueued_at"`
	LastError   string `json:"last_error,omitempty"`
}
