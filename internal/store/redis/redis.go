// Package redis implementa los repositorios sobre Redis con go-redis.
//
// Clients se guardan como JSON bajo una key; grants como hashes para que los
// scripts Lua puedan leer y escribir campos individuales de forma atómica.
// Los índices secundarios (client_id, name, code/token hashes) son keys
// string que apuntan al id primario.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

// Config es la conexión del driver.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // namespace de keys, ej. "grantex"
}

// Store agrupa el cliente redis y los repositorios.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// Open conecta y verifica con un PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "grantex"
	}
	return &Store{rdb: rdb, prefix: prefix + ":"}, nil
}

// Close cierra la conexión.
func (s *Store) Close() error { return s.rdb.Close() }

// Clients retorna el repositorio de clients.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{s} }

// Authorizations retorna el repositorio de grants.
func (s *Store) Authorizations() repository.AuthorizationRepository { return &authRepo{s} }

func (s *Store) clientKey(id string) string       { return s.prefix + "client:" + id }
func (s *Store) clientCIDKey(cid string) string   { return s.prefix + "client:cid:" + cid }
func (s *Store) clientNameKey(name string) string { return s.prefix + "client:name:" + name }

func (s *Store) authKey(id string) string          { return s.prefix + "auth:" + id }
func (s *Store) authIndexPrefix() string           { return s.prefix + "auth:" }
func (s *Store) authCodeKey(hash string) string    { return s.prefix + "auth:code:" + hash }
func (s *Store) authAccessKey(hash string) string  { return s.prefix + "auth:at:" + hash }
func (s *Store) authRefreshKey(hash string) string { return s.prefix + "auth:rt:" + hash }
func (s *Store) authByClientKey(id string) string  { return s.prefix + "auth:client:" + id }
