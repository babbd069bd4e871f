package pg

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

type authRepo struct {
	pool *pgxpool.Pool
}

const authColumns = `id, owner_id, client_id, scopes, code_hash, access_token_hash,
	refresh_token_hash, pkce_challenge, expires_at, created_at`

func (r *authRepo) Create(ctx context.Context, auth *repository.Authorization) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_authorizations (`+authColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		auth.ID, auth.OwnerID, auth.ClientID, strings.Join(auth.Scopes, " "),
		auth.CodeHash, auth.AccessTokenHash, auth.RefreshTokenHash,
		auth.PKCEChallenge, auth.ExpiresAt, auth.CreatedAt,
	)
	return classify(err)
}

func (r *authRepo) GetByID(ctx context.Context, id string) (*repository.Authorization, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *authRepo) GetByCodeHash(ctx context.Context, codeHash string) (*repository.Authorization, error) {
	return r.getWhere(ctx, "code_hash = $1 AND (expires_at IS NULL OR expires_at > NOW())", codeHash)
}

func (r *authRepo) GetByAccessTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	return r.getWhere(ctx, "access_token_hash = $1 AND (expires_at IS NULL OR expires_at > NOW())", tokenHash)
}

// GetByRefreshTokenHash no filtra por expires_at: el refresh token sobrevive
// al vencimiento del access token que acompaña.
func (r *authRepo) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	return r.getWhere(ctx, "refresh_token_hash = $1", tokenHash)
}

// IssueTokens escribe los hashes nuevos en un único UPDATE condicional.
// Las cláusulas Require* actúan como compare-and-swap: si otro request ya
// consumió el code o rotó el refresh token, RowsAffected es 0 y se reporta
// ErrNotFound.
func (r *authRepo) IssueTokens(ctx context.Context, issue repository.TokenIssue) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE oauth_authorizations
		SET access_token_hash = $2,
		    refresh_token_hash = COALESCE($3, refresh_token_hash),
		    code_hash = CASE WHEN $4 THEN NULL ELSE code_hash END
		WHERE id = $1
		  AND ($5::text IS NULL OR code_hash = $5)
		  AND ($6::text IS NULL OR refresh_token_hash = $6)`,
		issue.AuthorizationID, issue.AccessTokenHash, issue.RefreshTokenHash,
		issue.ClearCode, issue.RequireCodeHash, issue.RequireRefreshTokenHash,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *authRepo) DeleteByClient(ctx context.Context, clientID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM oauth_authorizations WHERE client_id = $1`, clientID)
	return classify(err)
}

func (r *authRepo) getWhere(ctx context.Context, where string, arg any) (*repository.Authorization, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+authColumns+` FROM oauth_authorizations WHERE `+where, arg)
	var (
		a      repository.Authorization
		scopes string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.ClientID, &scopes, &a.CodeHash,
		&a.AccessTokenHash, &a.RefreshTokenHash, &a.PKCEChallenge, &a.ExpiresAt, &a.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	a.Scopes = strings.Fields(scopes)
	if len(a.Scopes) == 0 {
		a.Scopes = nil
	}
	return &a, nil
}
