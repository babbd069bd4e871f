// Package store arma el data access layer concreto según configuración.
//
// Drivers:
//   - memory: in-process (go-cache), para desarrollo y tests.
//   - postgres: pgx, para producción.
//   - redis: go-redis, para despliegues sin SQL.
//
// Todos los adapters clasifican sus errores a los sentinels de
// internal/domain/repository; ningún error de motor cruza esta frontera.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
	"github.com/dropDatabas3/grantex/internal/store/memory"
	"github.com/dropDatabas3/grantex/internal/store/pg"
	storeredis "github.com/dropDatabas3/grantex/internal/store/redis"
)

// Config selecciona e inicializa el driver.
type Config struct {
	Driver string // "memory" | "postgres" | "redis"

	// DSN para postgres.
	DSN string

	// Redis conexión para el driver redis.
	Redis RedisConfig
}

// RedisConfig conexión del driver redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store agrupa los repositorios del DAL.
type Store struct {
	Clients        repository.ClientRepository
	Authorizations repository.AuthorizationRepository

	closeFn func() error
}

// Close libera las conexiones del driver.
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Open crea el Store según cfg.Driver.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	log := logger.From(ctx).With(logger.Layer("store"), logger.Driver(cfg.Driver))

	switch cfg.Driver {
	case "postgres":
		st, err := pg.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		log.Info("store ready")
		return &Store{Clients: st.Clients(), Authorizations: st.Authorizations(), closeFn: st.Close}, nil

	case "redis":
		st, err := storeredis.Open(ctx, storeredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("store: open redis: %w", err)
		}
		log.Info("store ready")
		return &Store{Clients: st.Clients(), Authorizations: st.Authorizations(), closeFn: st.Close}, nil

	case "memory", "":
		st := memory.New()
		log.Info("store ready")
		return &Store{Clients: st.Clients(), Authorizations: st.Authorizations()}, nil

	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
