package repository

import (
	"context"
	"time"
)

// Authorization representa el grant persistido de un resource owner:
// scopes otorgados y las credenciales vivas derivadas (code, tokens).
// Solo se guardan hashes; los valores en claro viajan al client una vez.
type Authorization struct {
	ID string // UUID interno

	// OwnerID resource owner que otorgó el acceso. Opaco para el core.
	OwnerID string

	// ClientID UUID interno del Client al que se emitió el grant.
	ClientID string

	// Scopes set de scopes otorgados (en el wire: string space-delimited).
	Scopes []string

	// CodeHash hash del authorization code. nil una vez canjeado (single use).
	CodeHash *string

	AccessTokenHash  *string
	RefreshTokenHash *string

	// PKCEChallenge challenge S256 guardado en el authorize step.
	// Solo relevante para clients native.
	PKCEChallenge string

	// ExpiresAt gobierna la validez del code y, si está, del access token.
	// nil = no expira.
	ExpiresAt *time.Time

	CreatedAt time.Time
}

// Expired retorna true si el grant ya venció en el instante now.
func (a *Authorization) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// ExpiresIn segundos restantes de validez, o 0 si no expira.
func (a *Authorization) ExpiresIn(now time.Time) int64 {
	if a.ExpiresAt == nil {
		return 0
	}
	d := a.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// TokenIssue describe la mutación de canje: guardar hashes nuevos y limpiar
// el code, como un único update condicional.
type TokenIssue struct {
	AuthorizationID string

	// RequireCodeHash si no es nil, el update solo procede si el code hash
	// almacenado todavía es exactamente este valor (compare-and-swap).
	// El perdedor de una carrera recibe ErrNotFound.
	RequireCodeHash *string

	// RequireRefreshTokenHash CAS análogo para rotación de refresh tokens:
	// invalidar el token anterior en el mismo paso que persiste el nuevo.
	RequireRefreshTokenHash *string

	AccessTokenHash string

	// RefreshTokenHash nil = no tocar el refresh token almacenado.
	RefreshTokenHash *string

	// ClearCode borra el code al emitir tokens (enforcement de un solo uso).
	ClearCode bool
}

// AuthorizationRepository define operaciones de persistencia sobre grants.
type AuthorizationRepository interface {
	// Create persiste un authorization nuevo.
	// Retorna ErrConflict si algún hash único ya existe.
	Create(ctx context.Context, auth *Authorization) error

	// GetByID busca por UUID interno.
	GetByID(ctx context.Context, id string) (*Authorization, error)

	// GetByCodeHash busca por hash del code. Un grant expirado o con code
	// ya canjeado cuenta como inexistente (ErrNotFound).
	GetByCodeHash(ctx context.Context, codeHash string) (*Authorization, error)

	// GetByAccessTokenHash busca por hash del access token, chequeando expiry.
	GetByAccessTokenHash(ctx context.Context, tokenHash string) (*Authorization, error)

	// GetByRefreshTokenHash busca por hash del refresh token.
	GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*Authorization, error)

	// IssueTokens aplica la mutación de canje de forma atómica.
	// Si un Require* no coincide con el estado actual retorna ErrNotFound
	// sin efectos (dos canjes concurrentes del mismo code: gana uno).
	IssueTokens(ctx context.Context, issue TokenIssue) error

	// DeleteByClient elimina todos los grants de un client (cascading destroy).
	DeleteByClient(ctx context.Context, clientID string) error
}
