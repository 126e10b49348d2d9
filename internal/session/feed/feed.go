// Package feed defines the identity event stream the session synchronizer
// consumes. The identity service is the producer; this service only projects.
package feed

import "context"

// EventType discriminates identity feed payloads.
type EventType string

const (
	// EventAccountPresent announces an authenticated account, on sign-in and
	// on later identity attribute changes.
	EventAccountPresent EventType = "account_present"
	// EventAccountAbsent announces that no account is signed in.
	EventAccountAbsent EventType = "account_absent"
)

// Event is one identity feed message.
type Event struct {
	Type        EventType `json:"type"`
	AccountID   string    `json:"account_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
}

// IdentityFeed delivers identity events in order to a single handler. Consume
// blocks until the context is canceled or the feed closes.
type IdentityFeed interface {
	Consume(ctx context.Context, handle func(context.Context, Event) error) error
}
