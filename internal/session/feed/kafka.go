package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka consumes the identity topic. The consumer group has a single member
// per deployment, matching the at-most-one-subscription contract of the feed.
type Kafka struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewKafka(client *kgo.Client, logger *slog.Logger) *Kafka {
	return &Kafka{client: client, logger: logger}
}

func (f *Kafka) Consume(ctx context.Context, handle func(context.Context, Event) error) error {
	for {
		fetches := f.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			f.logger.ErrorContext(ctx, "identity feed fetch error",
				"topic", topic, "partition", partition, "error", err)
		})

		var handleErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handleErr != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(record.Value, &ev); err != nil {
				// A malformed record is logged and skipped, not retried.
				f.logger.WarnContext(ctx, "dropping malformed identity event",
					"topic", record.Topic, "offset", record.Offset, "error", err)
				return
			}
			handleErr = handle(ctx, ev)
		})
		if handleErr != nil {
			return handleErr
		}
	}
}
