package wal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaFeed produces recorded entries to per-target Kafka topics for the
// external replay consumer. Entries for one saga share a key, so a saga's
// intents stay ordered within a partition.
type KafkaFeed struct {
	client *kgo.Client
	prefix string
}

func NewKafkaFeed(client *kgo.Client) *KafkaFeed {
	return &KafkaFeed{client: client, prefix: "policybridge.wal."}
}

func (f *KafkaFeed) topic(target string) string {
	return f.prefix + target
}

// Push produces the entry to its target topic and waits for the ack.
func (f *KafkaFeed) Push(ctx context.Context, entry Entry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal wal entry: %w", err)
	}
	record := &kgo.Record{
		Topic: f.topic(entry.Target),
		Key:   []byte(entry.SagaID),
		Value: doc,
	}
	if err := f.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce wal entry to %s: %w", entry.Target, err)
	}
	return nil
}

// EnsureTopics creates the replay topic for each target if it does not
// already exist. Called once at startup with the known collaborator targets.
func (f *KafkaFeed) EnsureTopics(ctx context.Context, targets ...string) error {
	adm := kadm.NewClient(f.client)

	topics := make([]string, 0, len(targets))
	for _, target := range targets {
		topics = append(topics, f.topic(target))
	}

	resps, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create replay topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create replay topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}
