// Package pubsub wraps go-redis PUBLISH/SUBSCRIBE into the typed progress
// event topics the job control plane and agent protocol share (§6,
// "job:<id>" and "workspace_logs:<ws>" topics).
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Event is one progress/log line published to a topic.
type Event struct {
	Type    string         `json:"type"`
	At      string         `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Publisher publishes Events to Redis pub/sub topics.
type Publisher struct {
	client *redis.Client
}

// New returns a Publisher backed by client.
func New(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// JobTopic is the per-run progress topic a job's step updates are
// published to.
func JobTopic(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// WorkspaceLogTopic is the workspace-wide log tail topic.
func WorkspaceLogTopic(workspaceID string) string {
	return fmt.Sprintf("workspace_logs:%s", workspaceID)
}

// Publish marshals event as JSON and publishes it to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, event Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("pubsub: marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, topic, encoded).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", topic, err)
	}
	return nil
}

// Subscription is a live subscription to one or more topics.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription to topics; callers must call Close when
// done consuming Events().
func (p *Publisher) Subscribe(ctx context.Context, topics ...string) *Subscription {
	return &Subscription{pubsub: p.client.Subscribe(ctx, topics...)}
}

// Events returns a channel of decoded Events; malformed payloads are
// skipped rather than closing the channel.
func (s *Subscription) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	raw := s.pubsub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- event:
				}
			}
		}
	}()
	return out
}

// Close unsubscribes and releases the underlying connection.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
