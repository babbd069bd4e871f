package oauth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
	"github.com/dropDatabas3/grantex/internal/security/securecode"
)

// TokenDecoder decodifica un bearer estructurado (JWT) emitido por un
// issuer externo. Es un colaborador: el engine no sabe de formatos JWT.
type TokenDecoder interface {
	// Decode retorna el authorization id embebido en el token.
	// Cualquier falla de decode/firma se trata como "no existe tal grant".
	Decode(raw string) (authorizationID string, err error)
}

// Authorizations implementa el ciclo de vida de grants: lookups por hash,
// lookup por token estructurado, y la mutación de emisión de tokens.
type Authorizations struct {
	repo    repository.AuthorizationRepository
	scheme  securecode.Scheme
	decoder TokenDecoder // opcional
}

// NewAuthorizations crea el service. decoder puede ser nil (solo opacos).
func NewAuthorizations(repo repository.AuthorizationRepository, scheme securecode.Scheme, decoder TokenDecoder) *Authorizations {
	return &Authorizations{repo: repo, scheme: scheme, decoder: decoder}
}

// FindByCode busca el grant por el code presentado. Expirado ≡ inexistente.
func (s *Authorizations) FindByCode(ctx context.Context, rawCode string) (*repository.Authorization, error) {
	return s.repo.GetByCodeHash(ctx, securecode.Hashify(rawCode))
}

// FindByRefreshToken busca el grant por el refresh token presentado.
func (s *Authorizations) FindByRefreshToken(ctx context.Context, rawToken string) (*repository.Authorization, error) {
	return s.repo.GetByRefreshTokenHash(ctx, securecode.Hashify(rawToken))
}

// FindAccessToken busca el grant de un bearer presentado. Tokens opacos se
// buscan por hash; tokens estructurados (JWT) se decodifican con el decoder
// externo y se buscan por el id embebido. Un decode fallido es ErrNotFound,
// nunca un fault.
func (s *Authorizations) FindAccessToken(ctx context.Context, raw string) (*repository.Authorization, error) {
	if raw == "" {
		return nil, repository.ErrNotFound
	}
	if s.decoder != nil && looksStructured(raw) {
		id, err := s.decoder.Decode(raw)
		if err != nil {
			logger.From(ctx).Debug("structured token rejected", logger.Err(err))
			return nil, repository.ErrNotFound
		}
		auth, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if auth.Expired(time.Now()) {
			return nil, repository.ErrNotFound
		}
		return auth, nil
	}
	return s.repo.GetByAccessTokenHash(ctx, securecode.Hashify(raw))
}

// looksStructured: un JWT compacto tiene exactamente dos puntos.
func looksStructured(raw string) bool {
	return strings.Count(raw, ".") == 2
}

// GrantInput datos para sintetizar un grant (desde un grant handler del host
// o desde el flujo administrativo).
type GrantInput struct {
	OwnerID string
	Client  *repository.Client
	Scopes  []string

	// TTL validez del grant/code. 0 = sin expiry.
	TTL time.Duration

	// WithCode emite un authorization code canjeable.
	WithCode bool

	// PKCEChallenge challenge S256 a verificar en el canje (clients native).
	PKCEChallenge string
}

// Grant crea y persiste un Authorization. Si WithCode, retorna además el
// code en claro (una sola vez).
func (s *Authorizations) Grant(ctx context.Context, in GrantInput) (*repository.Authorization, string, error) {
	auth := &repository.Authorization{
		ID:            uuid.NewString(),
		OwnerID:       in.OwnerID,
		ClientID:      in.Client.ID,
		Scopes:        in.Scopes,
		PKCEChallenge: in.PKCEChallenge,
		CreatedAt:     time.Now().UTC(),
	}
	if in.TTL > 0 {
		exp := time.Now().UTC().Add(in.TTL)
		auth.ExpiresAt = &exp
	}

	rawCode := ""
	if in.WithCode {
		code, err := s.scheme.GenerateUnique(ctx, func(ctx context.Context, candidate string) (bool, error) {
			_, err := s.repo.GetByCodeHash(ctx, securecode.Hashify(candidate))
			if repository.IsNotFound(err) {
				return false, nil
			}
			if err != nil {
				return true, err
			}
			return true, nil
		})
		if err != nil {
			return nil, "", err
		}
		rawCode = code
		h := securecode.Hashify(code)
		auth.CodeHash = &h
	}

	if err := s.repo.Create(ctx, auth); err != nil {
		return nil, "", err
	}
	return auth, rawCode, nil
}

// IssueOptions controla la mutación de emisión.
type IssueOptions struct {
	// IssueRefresh emite (y persiste el hash de) un refresh token nuevo.
	IssueRefresh bool

	// RequireCode condiciona el update a que el code siga presente sin
	// canjear (single use). El perdedor de la carrera ve ErrNotFound.
	RequireCode bool

	// RotateRefresh condiciona el update al refresh token actual e implica
	// IssueRefresh: invalidar el viejo y emitir el nuevo en el mismo paso.
	RotateRefresh bool
}

// IssueTokens genera un access token único (y opcionalmente un refresh
// token), persiste sus hashes y limpia el code, todo como un único update
// condicional del adapter. Retorna los valores en claro, una sola vez.
func (s *Authorizations) IssueTokens(ctx context.Context, auth *repository.Authorization, opts IssueOptions) (access, refresh string, err error) {
	access, err = s.scheme.GenerateUnique(ctx, func(ctx context.Context, candidate string) (bool, error) {
		_, err := s.repo.GetByAccessTokenHash(ctx, securecode.Hashify(candidate))
		if repository.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return true, err
		}
		return true, nil
	})
	if err != nil {
		return "", "", err
	}

	issue := repository.TokenIssue{
		AuthorizationID: auth.ID,
		AccessTokenHash: securecode.Hashify(access),
		ClearCode:       true,
	}
	if opts.RequireCode {
		issue.RequireCodeHash = auth.CodeHash
	}
	if opts.RotateRefresh {
		issue.RequireRefreshTokenHash = auth.RefreshTokenHash
	}

	if opts.IssueRefresh || opts.RotateRefresh {
		refresh, err = s.scheme.GenerateUnique(ctx, func(ctx context.Context, candidate string) (bool, error) {
			_, err := s.repo.GetByRefreshTokenHash(ctx, securecode.Hashify(candidate))
			if repository.IsNotFound(err) {
				return false, nil
			}
			if err != nil {
				return true, err
			}
			return true, nil
		})
		if err != nil {
			return "", "", err
		}
		h := securecode.Hashify(refresh)
		issue.RefreshTokenHash = &h
	}

	if err := s.repo.IssueTokens(ctx, issue); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
