// Package pg implementa los repositorios sobre Postgres con pgx.
//
// Clasificación de errores: 23505 (unique_violation) → repository.ErrConflict,
// pgx.ErrNoRows → repository.ErrNotFound. Nada más cruza la frontera.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	migrations "github.com/dropDatabas3/grantex/migrations/postgres"
)

// Store agrupa el pool y los repositorios pg.
type Store struct {
	pool *pgxpool.Pool
}

// Open conecta al DSN, verifica la conexión y aplica el schema embebido.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close cierra el pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Clients retorna el repositorio de clients.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{s.pool} }

// Authorizations retorna el repositorio de grants.
func (s *Store) Authorizations() repository.AuthorizationRepository { return &authRepo{s.pool} }

// migrate aplica los .sql embebidos en orden lexicográfico. Los statements
// son idempotentes (IF NOT EXISTS); alcanza para el bootstrap del schema.
func (s *Store) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
	}
	return nil
}

// classify mapea errores pgx/pgconn a los sentinels del dominio.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return repository.ErrConflict
	}
	return err
}
