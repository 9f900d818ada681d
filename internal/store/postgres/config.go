package postgres

import (
	"context"
	"fmt"
	"time"
)

// StoreConfig holds settings shared by every PostgreSQL governance store.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// QueryTimeoutSeconds is the maximum time a query can run before timing out.
	// Default: 10 seconds
	// Set to -1 to use context timeouts only.
	QueryTimeoutSeconds int32
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.QueryTimeoutSeconds < -1 {
		return fmt.Errorf("query timeout must be -1 or positive, got %d", c.QueryTimeoutSeconds)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
}

func (c *StoreConfig) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c == nil || c.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.QueryTimeoutSeconds)*time.Second)
}
