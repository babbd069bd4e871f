package oauth

import (
	"context"
	"time"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
)

// Outcome es el resultado de validar un token request: o el par OAuth2
// (error, error_description), o un estado de éxito del que Commit emite los
// tokens. La mutación se separa de la validación: el caller inspecciona el
// Outcome y decide canjear.
type Outcome struct {
	engine    *Engine
	params    Params
	grantType string

	client        *repository.Client
	authorization *repository.Authorization
	scope         []string

	errorCode        string
	errorDescription string
	committed        bool
}

func (o *Outcome) fail(code, description string) *Outcome {
	// solo la primera falla cuenta; el pipeline corta igual
	if o.errorCode == "" {
		o.errorCode = code
		o.errorDescription = description
	}
	return o
}

// OK retorna true si la validación pasó (sin error code).
func (o *Outcome) OK() bool {
	return o.errorCode == ""
}

// ErrorCode retorna el código OAuth2, o "" en éxito.
func (o *Outcome) ErrorCode() string { return o.errorCode }

// ErrorDescription retorna la descripción del wire contract, o "".
func (o *Outcome) ErrorDescription() string { return o.errorDescription }

// GrantType retorna el grant type del request (ya reconocido o no).
func (o *Outcome) GrantType() string { return o.grantType }

// Client retorna el client autenticado/resuelto, o nil si no se llegó ahí.
func (o *Outcome) Client() *repository.Client { return o.client }

// Authorization retorna el grant resuelto, o nil.
func (o *Outcome) Authorization() *repository.Authorization { return o.authorization }

// Scope retorna el scope reconciliado (narrowed) del canje.
func (o *Outcome) Scope() []string { return o.scope }

// TokenResponse es el body del token response OAuth2.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Commit ejecuta la mutación de emisión sobre un Outcome válido: access
// token nuevo siempre, code limpiado (single use) y refresh token según la
// policy del grant. Si pierde la carrera contra otro canje del mismo code o
// refresh token retorna ErrGrantConsumed y el Outcome queda invalid_grant,
// indistinguible de un code inexistente.
func (o *Outcome) Commit(ctx context.Context) (*TokenResponse, error) {
	if !o.OK() || o.committed || o.authorization == nil {
		return nil, ErrNotExchangeable
	}
	e := o.engine
	log := logger.From(ctx).With(logger.Layer("engine"), logger.Op("oauth.commit"), logger.GrantType(o.grantType))

	opts := IssueOptions{}
	switch o.grantType {
	case GrantAuthorizationCode:
		opts.RequireCode = true
		opts.IssueRefresh = e.issueRefresh
	case GrantRefreshToken:
		opts.RotateRefresh = e.rotateRefresh
	case GrantPassword, GrantAssertion:
		opts.IssueRefresh = e.issueRefresh
	case GrantClientCredentials:
		// M2M: nunca refresh token
	}

	access, refresh, err := e.auths.IssueTokens(ctx, o.authorization, opts)
	if repository.IsNotFound(err) {
		// Otro canje ganó el update condicional.
		log.Warn("grant already consumed", logger.ClientID(o.client.ClientID))
		o.errorCode = ErrorInvalidGrant
		o.errorDescription = descInvalidGrant
		return nil, ErrGrantConsumed
	}
	if err != nil {
		return nil, err
	}
	o.committed = true

	resp := &TokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    o.authorization.ExpiresIn(time.Now()),
		RefreshToken: refresh,
		Scope:        JoinScope(o.scope),
	}
	log.Info("tokens issued", logger.ClientID(o.client.ClientID))
	return resp, nil
}
