// Package database owns the storage connections the recommendation core
// depends on: Postgres for the interaction log and event feature rows,
// Neo4j for the trending co-occurrence graph, and the three-tier Redis
// topology caching embeddings, candidates, and orchestration results.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/config"
)

const connectProbeTimeout = 10 * time.Second

// Database bundles every live storage handle. Constructed once by the
// process bootstrap and passed into the stores and scorers that need it.
type Database struct {
	PG     *pgxpool.Pool
	Neo4j  neo4j.DriverWithContext
	Redis  *RedisClients
	logger *logrus.Logger
}

// RedisClients is the platform's three-tier Redis topology: Hot for
// session-adjacent state, Warm for candidate/feature caches, Cold for
// embeddings and other long-lived derived data.
type RedisClients struct {
	Hot  *redis.Client
	Warm *redis.Client
	Cold *redis.Client
}

// New connects and health-probes every backend. Any single failure aborts
// startup; the core has no degraded mode without its stores.
func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{logger: logger}

	pool, err := connectPostgres(cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	db.PG = pool
	logger.Info("postgres connection established")

	driver, err := connectNeo4j(cfg)
	if err != nil {
		return nil, fmt.Errorf("neo4j: %w", err)
	}
	db.Neo4j = driver
	logger.Info("neo4j connection established")

	clients, err := connectRedis(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	db.Redis = clients
	logger.Info("redis connections established")

	return db, nil
}

func connectPostgres(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.MaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func connectNeo4j(cfg *config.Config) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4j.URL,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 10
			c.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}
	return driver, nil
}

func connectRedis(cfg *config.Config) (*RedisClients, error) {
	newClient := func(ic config.RedisInstanceConfig) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:         ic.URL,
			MaxRetries:   ic.MaxRetries,
			PoolSize:     ic.PoolSize,
			ReadTimeout:  ic.Timeout,
			WriteTimeout: ic.Timeout,
		})
	}

	clients := &RedisClients{
		Hot:  newClient(cfg.Redis.Hot),
		Warm: newClient(cfg.Redis.Warm),
		Cold: newClient(cfg.Redis.Cold),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	for tier, client := range map[string]*redis.Client{"hot": clients.Hot, "warm": clients.Warm, "cold": clients.Cold} {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping %s tier: %w", tier, err)
		}
	}
	return clients, nil
}

// Close releases every connection. Errors are collected rather than
// short-circuiting so one failed close never leaks the rest.
func (db *Database) Close() error {
	var errs []error

	if db.PG != nil {
		db.PG.Close()
	}

	if db.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
		defer cancel()
		if err := db.Neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("neo4j: %w", err))
		}
	}

	if db.Redis != nil {
		for tier, client := range map[string]*redis.Client{"hot": db.Redis.Hot, "warm": db.Redis.Warm, "cold": db.Redis.Cold} {
			if client == nil {
				continue
			}
			if err := client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis %s: %w", tier, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("closing storage connections: %v", errs)
	}
	db.logger.Info("storage connections closed")
	return nil
}
