package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	pubsubTopics = map[string]*pubsub.Topic{}
)

// pubsubProjectID prefers PUBSUB_PROJECT_ID over the GCP project variables.
func pubsubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func PubSubConfigured() bool {
	return pubsubProjectID() != ""
}

// GetPubSubClient returns the shared client, creating it on first use.
// PUBSUB_CREDENTIALS_JSON replaces Application Default Credentials.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := pubsubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			logg.WithFields(logrus.Fields{"field": "pubsub", "project_id": projectID, "attempt": attempt}).Info("pubsub client ready")
			return c, nil
		}

		delay := retryDelay(attempt)
		logg.WithFields(logrus.Fields{
			"field":      "pubsub",
			"project_id": projectID,
			"attempt":    attempt,
			"retry":      delay.String(),
		}).Warn("pubsub client failed: " + err.Error())
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
	}
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PublishJSONWithResult publishes obj as JSON and waits for the server-assigned
// message id. Topic handles are reused across calls.
func PublishJSONWithResult(ctx context.Context, topicName string, obj any, attributes map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	t, err := publishTopic(ctx, topicName)
	if err != nil {
		return "", err
	}
	return t.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
}

func publishTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	c, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	t, ok := pubsubTopics[name]
	if !ok {
		t = c.Topic(name)
		pubsubTopics[name] = t
	}
	return t, nil
}

// ClosePubSub flushes pending publishes and closes the client.
func ClosePubSub() error {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	for name, t := range pubsubTopics {
		t.Stop()
		delete(pubsubTopics, name)
	}
	if pubsubClient == nil {
		return nil
	}
	err := pubsubClient.Close()
	pubsubClient = nil
	return err
}
