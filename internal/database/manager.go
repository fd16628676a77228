// Package database provides unified database management for the vertad
// services. It coordinates the PostgreSQL header store, the Redis target
// cache, and InfluxDB metrics.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vertachain/vertad/internal/database/influx"
	"github.com/vertachain/vertad/internal/database/postgres"
	"github.com/vertachain/vertad/internal/database/redis"
	"github.com/vertachain/vertad/pkg/circuit"
	"github.com/vertachain/vertad/pkg/errors"
	"github.com/vertachain/vertad/pkg/retry"
)

// Manager coordinates all database operations across PostgreSQL, Redis, and InfluxDB
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	// Repositories
	Headers   *postgres.HeaderRepository
	Retargets *postgres.RetargetRepository

	// Error handling
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// Config holds configuration for all database systems
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// NewManager creates a new database manager with all connections
func NewManager(cfg *Config) (*Manager, error) {
	// Initialize PostgreSQL
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
			"failed to connect to PostgreSQL database")
	}

	// Initialize Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
			"failed to connect to Redis database")
		if closeErr := pgClient.Close(); closeErr != nil {
			return nil, origErr.WithContext("postgres_cleanup_error", closeErr.Error())
		}
		return nil, origErr
	}

	// Initialize InfluxDB
	influxClient, err := influx.NewClient(cfg.Influx)
	if err != nil {
		origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
			"failed to connect to InfluxDB database")

		var closeErrs []error
		if closeErr := pgClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}
		if closeErr := redisClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}
		if len(closeErrs) > 0 {
			return nil, origErr.WithContext("cleanup_errors", fmt.Sprintf("%v", closeErrs))
		}
		return nil, origErr
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &Manager{
		Postgres:       pgClient,
		Redis:          redisClient,
		Influx:         influxClient,
		Headers:        postgres.NewHeaderRepository(pgClient.DB()),
		Retargets:      postgres.NewRetargetRepository(pgClient.DB()),
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.DatabaseConfig(),
	}, nil
}

// Close closes all database connections
func (m *Manager) Close() error {
	var errs []error

	if err := m.Postgres.Close(); err != nil {
		errs = append(errs, fmt.Errorf("postgres close: %w", err))
	}
	if err := m.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	m.Influx.Close()

	if len(errs) > 0 {
		return fmt.Errorf("database shutdown errors: %v", errs)
	}
	return nil
}

// Health checks connectivity to all databases
func (m *Manager) Health(ctx context.Context) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			if err := m.Postgres.Health(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_health",
					"PostgreSQL health check failed")
			}
			if err := m.Redis.Health(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "redis_health",
					"Redis health check failed")
			}
			if err := m.Influx.Health(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "influx_health",
					"InfluxDB health check failed")
			}
			return nil
		})
	})
}

// PersistHeader writes a header row with retry protection
func (m *Manager) PersistHeader(ctx context.Context, header *postgres.Header) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			if err := m.Headers.UpsertHeader(ctx, header); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "persist_header",
					"failed to persist header").
					WithContext("height", header.Height)
			}
			return nil
		})
	})
}

// RecordRetarget writes a retarget history row with retry protection
func (m *Manager) RecordRetarget(ctx context.Context, retarget *postgres.Retarget) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			if err := m.Retargets.CreateRetarget(ctx, retarget); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "record_retarget",
					"failed to record retarget").
					WithContext("height", retarget.Height)
			}
			return nil
		})
	})
}
