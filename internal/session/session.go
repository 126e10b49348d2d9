// Package session owns the notion of "who is acting": an explicit Session
// value threaded through engine and workflow calls, and the Synchronizer that
// projects identity-feed events into a consistent local view.
package session

import (
	"context"

	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/requestcontext"
)

// Session identifies the acting account for one operation. It is passed
// explicitly rather than read from ambient state so the core stays testable
// without a UI harness.
type Session struct {
	AccountID domain.AccountID
}

// FromContext builds a Session from the authenticated request context.
//
// Errors: CodeUnauthorized when no valid account id is present.
func FromContext(ctx context.Context) (Session, error) {
	raw := requestcontext.AccountID(ctx)
	if raw == "" {
		return Session{}, dErrors.New(dErrors.CodeUnauthorized, "no authenticated account")
	}
	accountID, err := domain.ParseAccountID(raw)
	if err != nil {
		return Session{}, dErrors.New(dErrors.CodeUnauthorized, "invalid account id")
	}
	return Session{AccountID: accountID}, nil
}
