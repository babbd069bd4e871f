package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

type authRepo struct{ s *Store }

// createAuthScript inserta el grant y sus índices sólo si ningún hash
// está ya indexado. KEYS[1] es el hash principal, el resto índices.
var createAuthScript = goredis.NewScript(`
for i = 2, #KEYS do
	if redis.call("EXISTS", KEYS[i]) == 1 then
		return 0
	end
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
for i = 2, #KEYS do
	redis.call("SET", KEYS[i], ARGV[1])
end
return 1
`)

// issueTokensScript es el compare-and-swap del canje: verifica que el code
// (o refresh token) siga siendo el esperado, escribe el access token nuevo,
// rota el refresh si corresponde y limpia el code junto con sus índices.
//
// KEYS[1]=hash del grant; ARGV[1]=prefijo de índices, ARGV[2]=access hash,
// ARGV[3]=refresh hash (""=conservar), ARGV[4]="1" limpia el code,
// ARGV[5]=code requerido (""=sin CAS), ARGV[6]=refresh requerido.
var issueTokensScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local code = redis.call("HGET", KEYS[1], "code_hash") or ""
local rt = redis.call("HGET", KEYS[1], "refresh_token_hash") or ""
local at = redis.call("HGET", KEYS[1], "access_token_hash") or ""
if ARGV[5] ~= "" and code ~= ARGV[5] then
	return 0
end
if ARGV[6] ~= "" and rt ~= ARGV[6] then
	return 0
end
local id = redis.call("HGET", KEYS[1], "id")
if at ~= "" then
	redis.call("DEL", ARGV[1] .. "at:" .. at)
end
redis.call("HSET", KEYS[1], "access_token_hash", ARGV[2])
redis.call("SET", ARGV[1] .. "at:" .. ARGV[2], id)
if ARGV[3] ~= "" then
	if rt ~= "" then
		redis.call("DEL", ARGV[1] .. "rt:" .. rt)
	end
	redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[3])
	redis.call("SET", ARGV[1] .. "rt:" .. ARGV[3], id)
end
if ARGV[4] == "1" and code ~= "" then
	redis.call("DEL", ARGV[1] .. "code:" .. code)
	redis.call("HDEL", KEYS[1], "code_hash")
end
return 1
`)

func (r *authRepo) Create(ctx context.Context, auth *repository.Authorization) error {
	keys := []string{r.s.authKey(auth.ID)}
	if auth.CodeHash != nil {
		keys = append(keys, r.s.authCodeKey(*auth.CodeHash))
	}
	if auth.AccessTokenHash != nil {
		keys = append(keys, r.s.authAccessKey(*auth.AccessTokenHash))
	}
	if auth.RefreshTokenHash != nil {
		keys = append(keys, r.s.authRefreshKey(*auth.RefreshTokenHash))
	}
	args := append([]any{auth.ID}, authFields(auth)...)
	n, err := createAuthScript.Run(ctx, r.s.rdb, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("redis: create authorization: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return r.s.rdb.SAdd(ctx, r.s.authByClientKey(auth.ClientID), auth.ID).Err()
}

func (r *authRepo) GetByID(ctx context.Context, id string) (*repository.Authorization, error) {
	return r.get(ctx, id)
}

func (r *authRepo) GetByCodeHash(ctx context.Context, codeHash string) (*repository.Authorization, error) {
	return r.byIndex(ctx, r.s.authCodeKey(codeHash), true)
}

func (r *authRepo) GetByAccessTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	return r.byIndex(ctx, r.s.authAccessKey(tokenHash), true)
}

func (r *authRepo) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	return r.byIndex(ctx, r.s.authRefreshKey(tokenHash), false)
}

func (r *authRepo) IssueTokens(ctx context.Context, issue repository.TokenIssue) error {
	refresh := ""
	if issue.RefreshTokenHash != nil {
		refresh = *issue.RefreshTokenHash
	}
	clear := "0"
	if issue.ClearCode {
		clear = "1"
	}
	requireCode := ""
	if issue.RequireCodeHash != nil {
		requireCode = *issue.RequireCodeHash
	}
	requireRefresh := ""
	if issue.RequireRefreshTokenHash != nil {
		requireRefresh = *issue.RequireRefreshTokenHash
	}
	n, err := issueTokensScript.Run(ctx, r.s.rdb,
		[]string{r.s.authKey(issue.AuthorizationID)},
		r.s.authIndexPrefix(), issue.AccessTokenHash, refresh, clear, requireCode, requireRefresh,
	).Int()
	if err != nil {
		return fmt.Errorf("redis: issue tokens: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *authRepo) DeleteByClient(ctx context.Context, clientID string) error {
	setKey := r.s.authByClientKey(clientID)
	ids, err := r.s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("redis: list grants: %w", err)
	}
	for _, id := range ids {
		auth, err := r.get(ctx, id)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		keys := []string{r.s.authKey(id)}
		if auth.CodeHash != nil {
			keys = append(keys, r.s.authCodeKey(*auth.CodeHash))
		}
		if auth.AccessTokenHash != nil {
			keys = append(keys, r.s.authAccessKey(*auth.AccessTokenHash))
		}
		if auth.RefreshTokenHash != nil {
			keys = append(keys, r.s.authRefreshKey(*auth.RefreshTokenHash))
		}
		if err := r.s.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis: delete grant: %w", err)
		}
	}
	return r.s.rdb.Del(ctx, setKey).Err()
}

func (r *authRepo) byIndex(ctx context.Context, key string, checkExpiry bool) (*repository.Authorization, error) {
	id, err := r.s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get grant index: %w", err)
	}
	auth, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if checkExpiry && auth.Expired(time.Now()) {
		return nil, repository.ErrNotFound
	}
	return auth, nil
}

func (r *authRepo) get(ctx context.Context, id string) (*repository.Authorization, error) {
	m, err := r.s.rdb.HGetAll(ctx, r.s.authKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get grant: %w", err)
	}
	if len(m) == 0 {
		return nil, repository.ErrNotFound
	}
	return authFromFields(m)
}

// authFields serializa el grant como pares field/value del hash redis.
// Los campos opcionales ausentes no se escriben.
func authFields(a *repository.Authorization) []any {
	fields := []any{
		"id", a.ID,
		"owner_id", a.OwnerID,
		"client_id", a.ClientID,
		"scopes", strings.Join(a.Scopes, " "),
		"pkce_challenge", a.PKCEChallenge,
		"created_at", strconv.FormatInt(a.CreatedAt.Unix(), 10),
	}
	if a.CodeHash != nil {
		fields = append(fields, "code_hash", *a.CodeHash)
	}
	if a.AccessTokenHash != nil {
		fields = append(fields, "access_token_hash", *a.AccessTokenHash)
	}
	if a.RefreshTokenHash != nil {
		fields = append(fields, "refresh_token_hash", *a.RefreshTokenHash)
	}
	if a.ExpiresAt != nil {
		fields = append(fields, "expires_at", strconv.FormatInt(a.ExpiresAt.Unix(), 10))
	}
	return fields
}

func authFromFields(m map[string]string) (*repository.Authorization, error) {
	a := &repository.Authorization{
		ID:            m["id"],
		OwnerID:       m["owner_id"],
		ClientID:      m["client_id"],
		PKCEChallenge: m["pkce_challenge"],
		Scopes:        strings.Fields(m["scopes"]),
	}
	if len(a.Scopes) == 0 {
		a.Scopes = nil
	}
	if v, ok := m["code_hash"]; ok {
		a.CodeHash = &v
	}
	if v, ok := m["access_token_hash"]; ok {
		a.AccessTokenHash = &v
	}
	if v, ok := m["refresh_token_hash"]; ok {
		a.RefreshTokenHash = &v
	}
	if v, ok := m["expires_at"]; ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: decode expires_at: %w", err)
		}
		t := time.Unix(sec, 0)
		a.ExpiresAt = &t
	}
	if v, ok := m["created_at"]; ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: decode created_at: %w", err)
		}
		a.CreatedAt = time.Unix(sec, 0)
	}
	return a, nil
}
