// Package redis implements the daily usage counters on Redis hashes.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// DefaultPrefix namespaces every key written by UsageStore.
const DefaultPrefix = "governor:usage:"

// UsageStore implements store.UsageStore. Each (org, day) is a hash keyed
// by counter column and a per-org set indexes the recorded days.
type UsageStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	timeout   time.Duration
}

var _ store.UsageStore = (*UsageStore)(nil)

// Option configures a UsageStore.
type Option func(*UsageStore)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *UsageStore) { s.prefix = prefix }
}

// WithRetention expires day hashes after d. Totals only cover retained days.
func WithRetention(d time.Duration) Option {
	return func(s *UsageStore) { s.retention = d }
}

// WithTimeout bounds each Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *UsageStore) { s.timeout = d }
}

// NewUsageStore creates a Redis backed usage store.
func NewUsageStore(client redis.UniversalClient, opts ...Option) *UsageStore {
	s := &UsageStore{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient connects to addr and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *UsageStore) dayKey(orgID, date string) string {
	return s.prefix + orgID + ":" + date
}

func (s *UsageStore) daysKey(orgID string) string {
	return s.prefix + orgID + ":days"
}

// Increment runs HINCRBY and the day index update in one MULTI/EXEC.
func (s *UsageStore) Increment(ctx context.Context, orgID, date string, counter models.CounterType, amount int64) error {
	field, err := counter.Column()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.dayKey(orgID, date)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, amount)
		pipe.SAdd(ctx, s.daysKey(orgID), date)
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return nil
}

// GetDaily returns one day of counters, zeroed when the hash is missing.
func (s *UsageStore) GetDaily(ctx context.Context, orgID, date string) (*models.UsageCounters, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.dayKey(orgID, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get daily usage: %w", err)
	}

	u := &models.UsageCounters{OrgID: orgID, CounterDate: date}
	if err := addFields(u, fields); err != nil {
		return nil, err
	}
	return u, nil
}

// GetTotals sums every indexed day. Days whose hash has expired contribute nothing.
func (s *UsageStore) GetTotals(ctx context.Context, orgID string) (*models.UsageCounters, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	days, err := s.client.SMembers(ctx, s.daysKey(orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list usage days: %w", err)
	}

	u := &models.UsageCounters{OrgID: orgID}
	if len(days) == 0 {
		return u, nil
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(days))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, day := range days {
			cmds = append(cmds, pipe.HGetAll(ctx, s.dayKey(orgID, day)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read usage days: %w", err)
	}

	for _, cmd := range cmds {
		if err := addFields(u, cmd.Val()); err != nil {
			return nil, err
		}
	}
	return u, nil
}

var counterByColumn = map[string]models.CounterType{
	"ai_calls_count":    models.CounterAICalls,
	"projects_count":    models.CounterProjects,
	"users_count":       models.CounterUsers,
	"initiatives_count": models.CounterInitiatives,
	"storage_used_mb":   models.CounterStorageMB,
}

func addFields(u *models.UsageCounters, fields map[string]string) error {
	for field, raw := range fields {
		counter, ok := counterByColumn[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", field, err)
		}
		u.Add(counter, n)
	}
	return nil
}
