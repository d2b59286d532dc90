package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSchemaDefault(t *testing.T) {
	assert.Equal(t, "profiles.users", NewStore(nil, "").usersTable())
	assert.Equal(t, "accounts.users", NewStore(nil, "accounts").usersTable())
}

func TestEmailLookupIsCaseInsensitive(t *testing.T) {
	s := NewStore(nil, "")

	// The stored email may be mixed case; the query must normalize the column,
	// not just the parameter, or such rows are never found.
	assert.Contains(t, s.selectByEmailSQL(), "lower(email)=$1")
	assert.Contains(t, s.selectBySubjectSQL(), "subject=$1")
}

func TestNilPoolReturnsNoUser(t *testing.T) {
	s := NewStore(nil, "")
	ctx := context.Background()

	u, err := s.GetBySubject(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}
