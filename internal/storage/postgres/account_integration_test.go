package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/chatrelay/internal/storage/postgres"
	"github.com/cory-johannsen/chatrelay/internal/testutil"
)

func setupRepo(t *testing.T) *postgres.AccountRepository {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewAccountRepository(pc.Pool.DB())
}

func uniqueMail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

func TestAccountRepository_Lifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	mail := uniqueMail("Alice")

	acct, err := repo.Create(ctx, mail, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, postgres.NormalizeMail(mail), acct.Mail)
	assert.NotEqual(t, "hunter22", acct.PasswordHash)
	assert.False(t, acct.CreatedAt.IsZero())

	exists, err := repo.Exists(ctx, mail)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Create(ctx, mail, "other")
	assert.ErrorIs(t, err, postgres.ErrAccountExists)

	got, err := repo.Verify(ctx, mail, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	_, err = repo.Verify(ctx, mail, "wrong")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

	assert.ErrorIs(t, repo.Delete(ctx, mail, "wrong"), postgres.ErrInvalidCredentials)
	require.NoError(t, repo.Delete(ctx, mail, "hunter22"))

	exists, err = repo.Exists(ctx, mail)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Verify(ctx, mail, "hunter22")
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

func TestPool_Health(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	assert.NoError(t, pc.Pool.Health(context.Background(), 5*time.Second))
}
