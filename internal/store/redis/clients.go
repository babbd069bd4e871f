package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

type clientRepo struct{ s *Store }

// createClientScript inserta el client sólo si ninguno de los índices
// (client_id, name) ya existe. Retorna 0 en caso de duplicado.
var createClientScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

func (r *clientRepo) Create(ctx context.Context, client *repository.Client) error {
	raw, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("redis: encode client: %w", err)
	}
	n, err := createClientScript.Run(ctx, r.s.rdb, []string{
		r.s.clientKey(client.ID),
		r.s.clientCIDKey(client.ClientID),
		r.s.clientNameKey(client.Name),
	}, raw, client.ID).Int()
	if err != nil {
		return fmt.Errorf("redis: create client: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	return r.byIndex(ctx, r.s.clientCIDKey(clientID))
}

func (r *clientRepo) GetByName(ctx context.Context, name string) (*repository.Client, error) {
	return r.byIndex(ctx, r.s.clientNameKey(name))
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*repository.Client, error) {
	return r.get(ctx, id)
}

func (r *clientRepo) Delete(ctx context.Context, id string) error {
	client, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if err := (&authRepo{r.s}).DeleteByClient(ctx, id); err != nil {
		return err
	}
	return r.s.rdb.Del(ctx,
		r.s.clientKey(id),
		r.s.clientCIDKey(client.ClientID),
		r.s.clientNameKey(client.Name),
	).Err()
}

func (r *clientRepo) byIndex(ctx context.Context, key string) (*repository.Client, error) {
	id, err := r.s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get client index: %w", err)
	}
	return r.get(ctx, id)
}

func (r *clientRepo) get(ctx context.Context, id string) (*repository.Client, error) {
	raw, err := r.s.rdb.Get(ctx, r.s.clientKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get client: %w", err)
	}
	var c repository.Client
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("redis: decode client: %w", err)
	}
	return &c, nil
}
