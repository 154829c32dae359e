// Package pubsub provides the interface-driven event stream the session
// manager publishes call and presence lifecycle events on. The in-memory
// backend serves single-instance deployments; the Redis backend lets
// external observers (or other instances) consume the same stream.
//
// The stream is intentionally unordered: handlers run on their own
// goroutines. Signal routing never goes through here.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing messages
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// Calls returns the topic carrying call lifecycle events
func (t TopicBuilder) Calls() string {
	return "calls"
}

// Presence returns the topic carrying presence transitions
func (t TopicBuilder) Presence() string {
	return "presence"
}

// User returns the topic for events scoped to a single user
func (t TopicBuilder) User(userID string) string {
	return "user:" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
