package feed

import "context"

// Memory is a channel-backed feed for tests and local development.
type Memory struct {
	events chan Event
}

func NewMemory() *Memory {
	return &Memory{events: make(chan Event, 16)}
}

// Publish enqueues one event. It blocks when the buffer is full, preserving
// delivery order.
func (f *Memory) Publish(ev Event) {
	f.events <- ev
}

func (f *Memory) Consume(ctx context.Context, handle func(context.Context, Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			if err := handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}
