// Package notify publishes run-completion messages so downstream consumers
// can pick up fresh snapshots without polling the bucket.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Publisher delivers one JSON payload and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// PubSub publishes to a Google Cloud Pub/Sub topic.
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub wraps an existing client's topic.
func NewPubSub(client *pubsub.Client, topicName string) (*PubSub, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicName == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	return &PubSub{topic: client.Topic(topicName)}, nil
}

// Publish marshals the payload and publishes it, blocking until the server
// acknowledges.
func (p *PubSub) Publish(ctx context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes outstanding messages.
func (p *PubSub) Stop() {
	p.topic.Stop()
}

// Memory collects published payloads, for tests.
type Memory struct {
	mu       sync.Mutex
	payloads [][]byte
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish stores the marshaled payload.
func (m *Memory) Publish(_ context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, data)
	return fmt.Sprintf("mem-%d", len(m.payloads)), nil
}

// Payloads returns copies of everything published so far.
func (m *Memory) Payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.payloads))
	for i, p := range m.payloads {
		out[i] = append([]byte(nil), p...)
	}
	return out
}
