package wal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Feed delivers recorded entries to the external replay consumer. The feed
// is downstream of the durable record: a feed failure never fails the
// guarded operation.
type Feed interface {
	Push(ctx context.Context, entry Entry) error
}

// RedisFeed pushes recorded entries onto per-target Redis lists for the
// external replay consumer.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

// queueKey namespaces replay queues away from other Redis users.
func queueKey(target string) string {
	return "policybridge:wal:" + target
}

// Push appends the entry to its target queue.
func (f *RedisFeed) Push(ctx context.Context, entry Entry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal wal entry: %w", err)
	}
	if err := f.client.RPush(ctx, queueKey(entry.Target), doc).Err(); err != nil {
		return fmt.Errorf("push wal entry to %s: %w", entry.Target, err)
	}
	return nil
}

// Pending returns the queue depth for a target. Exposed for operational
// visibility; the gateway itself never drains these queues.
func (f *RedisFeed) Pending(ctx context.Context, target string) (int64, error) {
	return f.client.LLen(ctx, queueKey(target)).Result()
}

// Tee is a Sink that records durably to the store first, then hands the
// entry to the feeder channel. The durable write is the fail-closed gate;
// the feed is best-effort and asynchronous.
type Tee struct {
	store  Store
	outbox chan<- Entry
	logger *slog.Logger
}

func NewTee(store Store, outbox chan<- Entry, logger *slog.Logger) *Tee {
	return &Tee{store: store, outbox: outbox, logger: logger}
}

func (t *Tee) Record(ctx context.Context, entry Entry) (string, error) {
	id, err := t.store.Record(ctx, entry)
	if err != nil {
		return "", err
	}
	entry.ID = id
	select {
	case t.outbox <- entry:
	default:
		// The entry is already durable; a full outbox only delays replay
		// feeding, it loses nothing.
		t.logger.Warn("wal feed outbox full, entry not queued for replay feed",
			"entry_id", id,
			"target", entry.Target,
		)
	}
	return id, nil
}

// Feeder drains the outbox into the feed. Run blocks until ctx ends.
type Feeder struct {
	feed   Feed
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewFeeder(feed Feed, inbox <-chan Entry, logger *slog.Logger) *Feeder {
	return &Feeder{feed: feed, inbox: inbox, logger: logger}
}

func (f *Feeder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-f.inbox:
			if err := f.feed.Push(ctx, entry); err != nil {
				f.logger.Error("wal feed push failed",
					"entry_id", entry.ID,
					"target", entry.Target,
					"error", err,
				)
			}
		}
	}
}
