package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/testutil"
)

func TestFromContext(t *testing.T) {
	accountID := uuid.NewString()
	ctx := testutil.ContextWithAccount(accountID)

	sess, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, accountID, sess.AccountID.String())
}

func TestFromContextRejectsMissingOrInvalidAccount(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = FromContext(testutil.ContextWithAccount("not-a-uuid"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
