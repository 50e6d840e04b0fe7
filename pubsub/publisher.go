// Package pubsub publishes targeting events, such as a segment being created.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, message string, params map[string]any) error
}

const (
	SNS  PublisherType = "sns"
	NONE PublisherType = ""
)

type PublisherType string
type PublisherFactory struct{}

func (s PublisherFactory) GetInstance(publisherType PublisherType, config map[string]string) (Publisher, error) {
	if config == nil {
		config = make(map[string]string)
	}
	switch publisherType {
	case SNS:
		return GetSNSPublisher(config)
	case NONE:
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("publisher type %q isn't supported", publisherType)
	}
}

// NoopPublisher drops every message. It stands in when no publisher is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, message string, params map[string]any) error {
	slog.Debug("dropping message, no publisher configured", slog.String("topic", topic))
	return nil
}
