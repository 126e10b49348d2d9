package testutil

import (
	"context"

	"fieldbook/pkg/requestcontext"
)

// ContextWithAccount returns a context carrying an authenticated account id,
// the way the auth middleware would after validating a bearer token.
func ContextWithAccount(accountID string) context.Context {
	return requestcontext.WithAccountID(context.Background(), accountID)
}
