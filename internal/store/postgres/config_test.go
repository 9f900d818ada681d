package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_ApplyDefaults(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://localhost/governor"}
	cfg.ApplyDefaults()

	assert.Equal(t, int32(20), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, int32(3600), cfg.MaxConnLifetime)
	assert.Equal(t, int32(1800), cfg.MaxConnIdleTime)
	assert.Equal(t, int32(10), cfg.ConnectTimeout)
	assert.Equal(t, int32(30), cfg.ConnectRetryTimeout)
	require.NoError(t, cfg.Validate())
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PoolConfig
		wantErr bool
	}{
		{name: "missing conn string", cfg: PoolConfig{MaxConns: 5, MinConns: 1}, wantErr: true},
		{name: "min above max", cfg: PoolConfig{ConnString: "postgres://x", MaxConns: 1, MinConns: 4}, wantErr: true},
		{name: "valid", cfg: PoolConfig{ConnString: "postgres://x", MaxConns: 4, MinConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPool_NilConfig(t *testing.T) {
	_, err := NewPool(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewPool_BadConnString(t *testing.T) {
	_, err := NewPool(context.Background(), &PoolConfig{ConnString: "://not a url", ConnectRetryTimeout: -1})
	assert.Error(t, err)
}

func TestStoreConfig(t *testing.T) {
	cfg := &StoreConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, int32(10), cfg.QueryTimeoutSeconds)
	require.NoError(t, cfg.Validate())

	ctx, cancel := cfg.withTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Second), deadline, time.Second)

	disabled := &StoreConfig{QueryTimeoutSeconds: -1}
	require.NoError(t, disabled.Validate())
	ctx, cancel = disabled.withTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)

	assert.Error(t, (&StoreConfig{QueryTimeoutSeconds: -5}).Validate())
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].version)
	assert.Equal(t, "1_initial_schema.sql", migrations[0].name)
	assert.Contains(t, migrations[0].content, "CREATE TABLE ai_actions")

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].version, migrations[i].version)
	}
}

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, mapPostgresError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapPostgresError(plain))

	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "ai_actions_pkey"}
	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(plain))

	mapped := mapPostgresError(unique)
	assert.ErrorIs(t, mapped, unique)
	assert.Contains(t, mapped.Error(), "ai_actions_pkey")

	check := mapPostgresError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "ai_actions_status_check"})
	assert.Contains(t, check.Error(), "check constraint violation")

	canceled := mapPostgresError(&pgconn.PgError{Code: pgerrcode.QueryCanceled})
	assert.Contains(t, canceled.Error(), "query canceled")
}
