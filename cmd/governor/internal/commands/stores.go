package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/governor/internal/gates"
	"github.com/wolfeidau/governor/internal/orchestrator"
	"github.com/wolfeidau/governor/internal/quota"
	"github.com/wolfeidau/governor/internal/rules"
	"github.com/wolfeidau/governor/internal/store"
	memorystore "github.com/wolfeidau/governor/internal/store/memory"
	postgresstore "github.com/wolfeidau/governor/internal/store/postgres"
	redisstore "github.com/wolfeidau/governor/internal/store/redis"
	sqlitestore "github.com/wolfeidau/governor/internal/store/sqlite"
)

// StoreFlags selects and configures the storage backend.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory, postgres or sqlite)" default:"memory" env:"GOVERNOR_STORE_TYPE" enum:"memory,postgres,sqlite"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	SQLitePath    string             `name:"sqlite-path" help:"path to the SQLite database file" default:"governor.db" env:"GOVERNOR_SQLITE_PATH"`
	Redis         RedisFlags         `embed:"" prefix:"redis-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Store Configuration
	QueryTimeout int32 `help:"query timeout in seconds (-1 disables)" default:"10"`

	// Connection Pool Configuration
	MaxConns            int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns            int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime     int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime     int32 `help:"maximum connection idle time in seconds" default:"1800"`
	ConnectRetryTimeout int32 `help:"seconds to keep retrying the initial connection (-1 for a single attempt)" default:"30"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"GOVERNOR_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:          s.ConnString,
		MaxConns:            s.MaxConns,
		MinConns:            s.MinConns,
		MaxConnLifetime:     s.MaxConnLifetime,
		MaxConnIdleTime:     s.MaxConnIdleTime,
		ConnectRetryTimeout: s.ConnectRetryTimeout,
	}
}

// RedisFlags optionally moves the usage counters to Redis.
type RedisFlags struct {
	Addr      string        `help:"Redis address for usage counters; empty keeps them in the primary store" env:"GOVERNOR_REDIS_ADDR"`
	Password  string        `help:"Redis password" env:"GOVERNOR_REDIS_PASSWORD"`
	DB        int           `name:"db" help:"Redis database number" default:"0"`
	Retention time.Duration `help:"expire daily usage hashes after this long (0 keeps them)" default:"0s"`
}

// openStores builds the configured backend. The returned close function
// releases its connections.
func (f *StoreFlags) openStores(ctx context.Context, log zerolog.Logger) (*store.Stores, func(), error) {
	var (
		stores  *store.Stores
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch f.StoreType {
	case "postgres":
		if err := f.PostgresStore.validate(); err != nil {
			return nil, nil, err
		}

		pool, err := postgresstore.NewPool(ctx, f.PostgresStore.poolConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		closers = append(closers, pool.Close)

		if f.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		stores, err = postgresstore.NewStores(pool, &postgresstore.StoreConfig{
			QueryTimeoutSeconds: f.PostgresStore.QueryTimeout,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	case "sqlite":
		db, err := sqlitestore.OpenDB(f.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close sqlite database")
			}
		})
		stores = sqlitestore.NewStores(db)
		log.Info().Str("path", f.SQLitePath).Msg("Using SQLite stores")

	default:
		stores = memorystore.NewStores()
		log.Info().Msg("Using in-memory stores")
	}

	if f.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, f.Redis.Addr, f.Redis.Password, f.Redis.DB)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		})
		stores.Usage = redisstore.NewUsageStore(client, redisstore.WithRetention(f.Redis.Retention))
		log.Info().Str("addr", f.Redis.Addr).Msg("Using Redis usage counters")
	}

	return stores, closeAll, nil
}

// engine is the wired governance core shared by every command.
type engine struct {
	stores *store.Stores
	orc    *orchestrator.Orchestrator
	quota  *quota.Service
}

// newEngine wires the gates, resolver and services over stores. policyFile,
// when set, replaces the built-in default policy.
func newEngine(stores *store.Stores, policyFile string, log zerolog.Logger) (*engine, error) {
	var resolverOpts []rules.ResolverOption
	if policyFile != "" {
		rf, err := rules.LoadRuleFile(policyFile)
		if err != nil {
			return nil, err
		}
		resolverOpts = append(resolverOpts, rules.WithDefaultPolicy(rf.PolicyLevel, rf.Rules))
		log.Info().
			Str("path", policyFile).
			Str("policy_level", string(rf.PolicyLevel)).
			Int("rules", len(rf.Rules)).
			Msg("Loaded default policy")
	}

	q := quota.NewService(stores.Organizations, stores.Limits, stores.Usage)
	orc := orchestrator.New(
		stores.Actions,
		stores.Audit,
		rules.NewResolver(stores.Policies, resolverOpts...),
		gates.NewRoleGate(stores.Projects, q),
		gates.NewComplianceLock(stores.Projects),
		orchestrator.WithWorkService(orchestrator.NewStoreWorkService(stores.Work)),
	)

	return &engine{stores: stores, orc: orc, quota: q}, nil
}

// withEngine opens the stores, wires the engine and runs fn with a logger in ctx.
func withEngine(ctx context.Context, globals *Globals, flags *StoreFlags, policyFile string, fn func(ctx context.Context, e *engine) error) error {
	log := setupLogger(globals)
	ctx = log.WithContext(ctx)

	stores, closeStores, err := flags.openStores(ctx, log)
	if err != nil {
		return err
	}
	defer closeStores()

	e, err := newEngine(stores, policyFile, log)
	if err != nil {
		return err
	}

	return fn(ctx, e)
}
