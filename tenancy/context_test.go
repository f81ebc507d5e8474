package tenancy

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/campaign-gateway/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAttach(t *testing.T) {
	ctx := context.Background()

	_, err := Scoped(ctx)
	assert.ErrorIs(t, err, ErrNotBound)
	assert.True(t, IsUnavailable(err))

	first := &Lease{scope: ScopeTenant}
	ctx, err = Attach(ctx, first)
	require.NoError(t, err)

	got, err := Scoped(ctx)
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = Attach(ctx, &Lease{scope: ScopeOperator})
	assert.ErrorIs(t, err, ErrScopeAlreadyBound)
	assert.True(t, services.IsIsolationError(err))

	got, _ = FromContext(ctx)
	assert.Same(t, first, got, "first lease stays bound")
}

func TestFromContext_NilLease(t *testing.T) {
	ctx := WithLease(context.Background(), nil)
	_, ok := FromContext(ctx)
	assert.False(t, ok)
}

func TestNewUnscoped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("requires a reason", func(t *testing.T) {
		u, err := NewUnscoped(db, "", zap.NewNop())
		assert.Nil(t, u)
		assert.Error(t, err)
	})

	t.Run("announces itself and traces statements", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		u, err := NewUnscoped(db, "pre-scope pipeline lookups", zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, "pre-scope pipeline lookups", u.Reason())

		warn := logs.FilterLevelExact(zapcore.WarnLevel).All()
		require.Len(t, warn, 1)
		assert.Equal(t, "pre-scope pipeline lookups", warn[0].ContextMap()["reason"])

		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		_, err = u.ExecContext(context.Background(), "UPDATE users SET name = $1", "x")
		require.NoError(t, err)

		assert.Equal(t, 1, logs.FilterMessage("unscoped statement").Len())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
