// Package memory implementa los repositorios sobre go-cache, in-process.
// Pensado para desarrollo y tests; la atomicidad del canje se garantiza con
// un mutex único sobre todas las mutaciones.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

// Prefijos de keys en el kv. Los índices secundarios guardan el id primario.
const (
	keyClient       = "client:"      // + uuid → repository.Client
	keyClientByCID  = "client:cid:"  // + client_id → uuid
	keyClientByName = "client:name:" // + name → uuid
	keyAuth         = "auth:"        // + uuid → repository.Authorization
	keyAuthByCode   = "auth:code:"   // + hash → uuid
	keyAuthByAccess = "auth:at:"     // + hash → uuid
	keyAuthByFresh  = "auth:rt:"     // + hash → uuid
)

// Store es el adapter in-memory.
type Store struct {
	mu sync.Mutex
	kv *gocache.Cache
}

// New crea el adapter.
func New() *Store {
	// Sin expiración del kv: la expiry del dominio la deciden los lookups
	// (un refresh token sobrevive al expires_at del grant).
	return &Store{kv: gocache.New(gocache.NoExpiration, 0)}
}

// Clients retorna el repositorio de clients.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{s} }

// Authorizations retorna el repositorio de grants.
func (s *Store) Authorizations() repository.AuthorizationRepository { return &authRepo{s} }

// --- clients ---

type clientRepo struct{ s *Store }

func (r *clientRepo) Create(ctx context.Context, client *repository.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, dup := r.s.kv.Get(keyClientByCID + client.ClientID); dup {
		return repository.ErrConflict
	}
	if _, dup := r.s.kv.Get(keyClientByName + client.Name); dup {
		return repository.ErrConflict
	}
	cp := *client
	r.s.kv.Set(keyClient+client.ID, &cp, gocache.NoExpiration)
	r.s.kv.Set(keyClientByCID+client.ClientID, client.ID, gocache.NoExpiration)
	r.s.kv.Set(keyClientByName+client.Name, client.ID, gocache.NoExpiration)
	return nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byIndex(keyClientByCID + clientID)
}

func (r *clientRepo) GetByName(ctx context.Context, name string) (*repository.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byIndex(keyClientByName + name)
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*repository.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r *clientRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	client, err := r.get(id)
	if err != nil {
		return err
	}
	r.s.kv.Delete(keyClient + id)
	r.s.kv.Delete(keyClientByCID + client.ClientID)
	r.s.kv.Delete(keyClientByName + client.Name)

	// cascading destroy de los grants del client
	for key, item := range r.s.kv.Items() {
		if !strings.HasPrefix(key, keyAuth) || strings.HasPrefix(key, keyAuthByCode) ||
			strings.HasPrefix(key, keyAuthByAccess) || strings.HasPrefix(key, keyAuthByFresh) {
			continue
		}
		auth, ok := item.Object.(*repository.Authorization)
		if ok && auth.ClientID == id {
			dropAuth(r.s.kv, auth)
		}
	}
	return nil
}

func (r *clientRepo) byIndex(key string) (*repository.Client, error) {
	v, ok := r.s.kv.Get(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.get(v.(string))
}

func (r *clientRepo) get(id string) (*repository.Client, error) {
	v, ok := r.s.kv.Get(keyClient + id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v.(*repository.Client)
	return &cp, nil
}

// --- authorizations ---

type authRepo struct{ s *Store }

func (r *authRepo) Create(ctx context.Context, auth *repository.Authorization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, idx := range authIndexKeys(auth) {
		if _, dup := r.s.kv.Get(idx); dup {
			return repository.ErrConflict
		}
	}
	cp := cloneAuth(auth)
	r.s.kv.Set(keyAuth+auth.ID, cp, gocache.NoExpiration)
	for _, idx := range authIndexKeys(auth) {
		r.s.kv.Set(idx, auth.ID, gocache.NoExpiration)
	}
	return nil
}

func (r *authRepo) GetByID(ctx context.Context, id string) (*repository.Authorization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r *authRepo) GetByCodeHash(ctx context.Context, codeHash string) (*repository.Authorization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	auth, err := r.byIndex(keyAuthByCode + codeHash)
	if err != nil {
		return nil, err
	}
	if auth.Expired(time.Now()) {
		return nil, repository.ErrNotFound
	}
	return auth, nil
}

func (r *authRepo) GetByAccessTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	auth, err := r.byIndex(keyAuthByAccess + tokenHash)
	if err != nil {
		return nil, err
	}
	if auth.Expired(time.Now()) {
		return nil, repository.ErrNotFound
	}
	return auth, nil
}

func (r *authRepo) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*repository.Authorization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byIndex(keyAuthByFresh + tokenHash)
}

func (r *authRepo) IssueTokens(ctx context.Context, issue repository.TokenIssue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.kv.Get(keyAuth + issue.AuthorizationID)
	if !ok {
		return repository.ErrNotFound
	}
	auth := v.(*repository.Authorization)

	// compare-and-swap: el code (o refresh) debe seguir siendo el esperado
	if issue.RequireCodeHash != nil {
		if auth.CodeHash == nil || *auth.CodeHash != *issue.RequireCodeHash {
			return repository.ErrNotFound
		}
	}
	if issue.RequireRefreshTokenHash != nil {
		if auth.RefreshTokenHash == nil || *auth.RefreshTokenHash != *issue.RequireRefreshTokenHash {
			return repository.ErrNotFound
		}
	}

	if auth.AccessTokenHash != nil {
		r.s.kv.Delete(keyAuthByAccess + *auth.AccessTokenHash)
	}
	at := issue.AccessTokenHash
	auth.AccessTokenHash = &at
	r.s.kv.Set(keyAuthByAccess+at, auth.ID, gocache.NoExpiration)

	if issue.RefreshTokenHash != nil {
		if auth.RefreshTokenHash != nil {
			r.s.kv.Delete(keyAuthByFresh + *auth.RefreshTokenHash)
		}
		rt := *issue.RefreshTokenHash
		auth.RefreshTokenHash = &rt
		r.s.kv.Set(keyAuthByFresh+rt, auth.ID, gocache.NoExpiration)
	}

	if issue.ClearCode && auth.CodeHash != nil {
		r.s.kv.Delete(keyAuthByCode + *auth.CodeHash)
		auth.CodeHash = nil
	}
	return nil
}

func (r *authRepo) DeleteByClient(ctx context.Context, clientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for key, item := range r.s.kv.Items() {
		if !strings.HasPrefix(key, keyAuth) || strings.HasPrefix(key, keyAuthByCode) ||
			strings.HasPrefix(key, keyAuthByAccess) || strings.HasPrefix(key, keyAuthByFresh) {
			continue
		}
		auth, ok := item.Object.(*repository.Authorization)
		if ok && auth.ClientID == clientID {
			dropAuth(r.s.kv, auth)
		}
	}
	return nil
}

func (r *authRepo) byIndex(key string) (*repository.Authorization, error) {
	v, ok := r.s.kv.Get(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.get(v.(string))
}

func (r *authRepo) get(id string) (*repository.Authorization, error) {
	v, ok := r.s.kv.Get(keyAuth + id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAuth(v.(*repository.Authorization)), nil
}

// --- helpers ---

func authIndexKeys(auth *repository.Authorization) []string {
	var keys []string
	if auth.CodeHash != nil {
		keys = append(keys, keyAuthByCode+*auth.CodeHash)
	}
	if auth.AccessTokenHash != nil {
		keys = append(keys, keyAuthByAccess+*auth.AccessTokenHash)
	}
	if auth.RefreshTokenHash != nil {
		keys = append(keys, keyAuthByFresh+*auth.RefreshTokenHash)
	}
	return keys
}

func dropAuth(kv *gocache.Cache, auth *repository.Authorization) {
	kv.Delete(keyAuth + auth.ID)
	for _, idx := range authIndexKeys(auth) {
		kv.Delete(idx)
	}
}

func cloneAuth(a *repository.Authorization) *repository.Authorization {
	cp := *a
	cp.Scopes = append([]string(nil), a.Scopes...)
	if a.CodeHash != nil {
		v := *a.CodeHash
		cp.CodeHash = &v
	}
	if a.AccessTokenHash != nil {
		v := *a.AccessTokenHash
		cp.AccessTokenHash = &v
	}
	if a.RefreshTokenHash != nil {
		v := *a.RefreshTokenHash
		cp.RefreshTokenHash = &v
	}
	if a.ExpiresAt != nil {
		v := *a.ExpiresAt
		cp.ExpiresAt = &v
	}
	return &cp
}
