package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

type clientRepo struct {
	pool *pgxpool.Pool
}

const clientColumns = `id, client_id, name, client_type, redirect_uri, secret_hash, owner_id, created_at`

func (r *clientRepo) Create(ctx context.Context, client *repository.Client) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		client.ID, client.ClientID, client.Name, client.Type,
		client.RedirectURI, client.SecretHash, client.OwnerID, client.CreatedAt,
	)
	return classify(err)
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	return r.getWhere(ctx, "client_id = $1", clientID)
}

func (r *clientRepo) GetByName(ctx context.Context, name string) (*repository.Client, error) {
	return r.getWhere(ctx, "name = $1", name)
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*repository.Client, error) {
	return r.getWhere(ctx, "id = $1", id)
}

// Delete borra el client; los grants caen por el ON DELETE CASCADE del schema.
func (r *clientRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM oauth_clients WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *clientRepo) getWhere(ctx context.Context, where string, arg any) (*repository.Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM oauth_clients WHERE `+where, arg)
	var c repository.Client
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Type,
		&c.RedirectURI, &c.SecretHash, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}
