// Package recognition owns the outbound side of the mediator contract: the
// engine publishes a recognition request after a capture, and the mediator
// answers through the callback endpoint. The client never supplies results.
package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Request asks the mediator to analyze one observation's image.
type Request struct {
	ObservationID string `json:"observation_id"`
	OwnerID       string `json:"owner_id"`
	ImageRef      string `json:"image_ref"`
}

// Publisher hands a recognition request to the mediator's transport. A
// successful publish means the request was accepted, which is what drives
// uploaded → analyzing.
type Publisher interface {
	PublishRequest(ctx context.Context, req Request) error
}

// KafkaPublisher produces recognition requests to the configured topic.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) PublishRequest(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode recognition request: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(req.ObservationID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish recognition request: %w", err)
	}
	return nil
}

// LogPublisher accepts every request and only logs it. It backs local
// development where no broker or mediator is running.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishRequest(ctx context.Context, req Request) error {
	p.logger.InfoContext(ctx, "recognition request accepted (log-only publisher)",
		"observation_id", req.ObservationID,
		"image_ref", req.ImageRef,
	)
	return nil
}
