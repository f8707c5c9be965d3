package workflow

import (
	"context"
	"encoding/json"
	"errors"

	"bitbucket.org/mmdatafocus/invoice_backend/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type LogSink struct {
	Logger *logrus.Logger
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, n Notification) error {
	fields := logrus.Fields{
		"field":          "LogSink",
		"event_type":     n.EventType,
		"invoice_id":     n.InvoiceID,
		"invoice_number": n.InvoiceNumber,
		"to_state":       n.ToState,
		"actor_id":       n.ActorID,
		"correlation_id": n.CorrelationID,
	}
	if n.FromState != nil {
		fields["from_state"] = *n.FromState
	}
	if n.AssignedTo != nil {
		fields["assigned_to"] = *n.AssignedTo
	}
	s.Logger.WithFields(fields).Info("invoice notification")
	return nil
}

// PubSubSink publishes each notification as JSON on a Google Pub/Sub topic.
type PubSubSink struct {
	Topic string
	// Publish defaults to config.PublishJSONWithResult.
	Publish func(ctx context.Context, topic string, obj interface{}, attributes map[string]string) (string, error)
}

func NewPubSubSink(topic string) *PubSubSink {
	return &PubSubSink{Topic: topic, Publish: config.PublishJSONWithResult}
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Send(ctx context.Context, n Notification) error {
	if s.Topic == "" {
		return errors.New("pubsub topic is not configured")
	}
	_, err := s.Publish(ctx, s.Topic, n, map[string]string{
		"event_type":     string(n.EventType),
		"correlation_id": n.CorrelationID,
	})
	return err
}

// RedisSink PUBLISHes each notification on a Redis channel.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, n Notification) error {
	if s.Client == nil {
		return errors.New("redis client is nil")
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel, b).Err()
}
