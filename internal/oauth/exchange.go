package oauth

import (
	"context"
	"net/url"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
	"github.com/dropDatabas3/grantex/internal/security/securecode"
)

// Params es el mapeo plano de parámetros del token request.
// Un valor vacío cuenta como parámetro ausente.
type Params map[string]string

// Nombres de parámetros del token endpoint.
const (
	ParamGrantType     = "grant_type"
	ParamClientID      = "client_id"
	ParamClientSecret  = "client_secret"
	ParamCode          = "code"
	ParamRedirectURI   = "redirect_uri"
	ParamCodeVerifier  = "code_verifier"
	ParamUsername      = "username"
	ParamPassword      = "password"
	ParamAssertionType = "assertion_type"
	ParamAssertion     = "assertion"
	ParamRefreshToken  = "refresh_token"
	ParamScope         = "scope"
)

// Grant types soportados.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantAssertion         = "assertion"
)

// EngineDeps dependencias para crear el Engine.
type EngineDeps struct {
	Clients        repository.ClientRepository
	Authorizations *Authorizations
	Handlers       *HandlerRegistry

	// IssueRefresh emite un refresh token nuevo al canjear los grants que
	// representan un consentimiento fresco (authorization_code, password,
	// assertion). client_credentials nunca recibe refresh.
	IssueRefresh bool

	// RotateRefresh rota el refresh token en cada canje refresh_token:
	// el anterior queda inválido en el mismo paso atómico.
	RotateRefresh bool
}

// Engine es el state machine de canje de grants. No guarda estado entre
// requests; cada Exchange produce un Outcome independiente.
type Engine struct {
	clients       repository.ClientRepository
	auths         *Authorizations
	handlers      *HandlerRegistry
	issueRefresh  bool
	rotateRefresh bool
}

// NewEngine crea el engine de canje.
func NewEngine(d EngineDeps) *Engine {
	h := d.Handlers
	if h == nil {
		h = NewHandlerRegistry()
	}
	return &Engine{
		clients:       d.Clients,
		auths:         d.Authorizations,
		handlers:      h,
		issueRefresh:  d.IssueRefresh,
		rotateRefresh: d.RotateRefresh,
	}
}

// Handlers expone el registry para la configuración de startup del host.
func (e *Engine) Handlers() *HandlerRegistry {
	return e.handlers
}

// Exchange valida un token request y computa su Outcome: el par OAuth2
// (error, error_description) o el estado de éxito canjeable con Commit.
// El pipeline corta en la primera falla. El error de retorno es solo para
// faults operacionales (persistencia); nunca para fallas de validación.
func (e *Engine) Exchange(ctx context.Context, params Params) (*Outcome, error) {
	o := &Outcome{engine: e, params: params}
	log := logger.From(ctx).With(logger.Layer("engine"), logger.Op("oauth.exchange"))

	grantType := params[ParamGrantType]
	if grantType == "" {
		return o.fail(ErrorInvalidRequest, descMissingParam(ParamGrantType)), nil
	}
	o.grantType = grantType
	log = log.With(logger.GrantType(grantType))

	var err error
	switch grantType {
	case GrantAuthorizationCode:
		err = e.validateAuthorizationCode(ctx, o)
	case GrantPassword:
		err = e.validatePassword(ctx, o)
	case GrantClientCredentials:
		err = e.validateClientCredentials(ctx, o)
	case GrantAssertion:
		err = e.validateAssertion(ctx, o)
	case GrantRefreshToken:
		err = e.validateRefreshToken(ctx, o)
	default:
		return o.fail(ErrorUnsupportedGrantType, descUnknownGrantType(grantType)), nil
	}
	if err != nil {
		return nil, err
	}
	if !o.OK() {
		log.Info("exchange rejected", logger.String("error", o.errorCode))
		return o, nil
	}

	scope, ok := NarrowScope(o.authorization.Scopes, ParseScope(params[ParamScope]))
	if !ok {
		log.Info("exchange rejected", logger.String("error", ErrorInvalidScope))
		return o.fail(ErrorInvalidScope, descInvalidScope), nil
	}
	o.scope = scope

	log.Debug("exchange validated", logger.ClientID(o.client.ClientID))
	return o, nil
}

// authenticateClient resuelve y autentica el client por client_id/client_secret.
// Camino común de todos los flujos salvo el native-app PKCE.
func (e *Engine) authenticateClient(ctx context.Context, o *Outcome) error {
	clientID := o.params[ParamClientID]
	if clientID == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamClientID))
		return nil
	}
	secret := o.params[ParamClientSecret]
	if secret == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamClientSecret))
		return nil
	}
	client, err := e.clients.GetByClientID(ctx, clientID)
	if repository.IsNotFound(err) {
		o.fail(ErrorInvalidClient, descUnknownClientID(clientID))
		return nil
	}
	if err != nil {
		return err
	}
	if !Authenticate(client, secret) {
		o.fail(ErrorInvalidClient, descClientSecretMismatch)
		return nil
	}
	o.client = client
	return nil
}

// --- authorization_code ---

func (e *Engine) validateAuthorizationCode(ctx context.Context, o *Outcome) error {
	client, auth, err := e.resolveCodeParty(ctx, o)
	if err != nil {
		return err
	}
	if client != nil && client.IsNative() {
		return e.validateNativeCode(ctx, o, client, auth)
	}
	if err := e.authenticateClient(ctx, o); err != nil || !o.OK() {
		return err
	}
	return e.validateConfidentialCode(ctx, o)
}

// resolveCodeParty intenta identificar al client del canje antes de elegir
// variante de flujo: por client_id si vino; si no, indirectamente por el
// code (el flujo native puede omitir client_id). Una resolución fallida no
// es terminal acá: el path confidential la re-valida con sus propios errores.
func (e *Engine) resolveCodeParty(ctx context.Context, o *Outcome) (*repository.Client, *repository.Authorization, error) {
	if clientID := o.params[ParamClientID]; clientID != "" {
		client, err := e.clients.GetByClientID(ctx, clientID)
		if err == nil {
			return client, nil, nil
		}
		if !repository.IsNotFound(err) {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	code := o.params[ParamCode]
	if code == "" {
		return nil, nil, nil
	}
	auth, err := e.auths.FindByCode(ctx, code)
	if repository.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	client, err := e.clients.GetByID(ctx, auth.ClientID)
	if repository.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return client, auth, nil
}

func (e *Engine) validateConfidentialCode(ctx context.Context, o *Outcome) error {
	code := o.params[ParamCode]
	if code == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamCode))
		return nil
	}
	// redirect_uri es requerida solo si el client registró una.
	if o.client.RedirectURI != "" && o.params[ParamRedirectURI] == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamRedirectURI))
		return nil
	}

	auth, err := e.auths.FindByCode(ctx, code)
	if repository.IsNotFound(err) {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	if err != nil {
		return err
	}
	// El grant debe haber sido emitido a este client.
	if auth.ClientID != o.client.ID {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	if o.client.RedirectURI != "" && o.params[ParamRedirectURI] != o.client.RedirectURI {
		o.fail(ErrorRedirectURIMismatch, descRedirectURIMismatch)
		return nil
	}
	o.authorization = auth
	return nil
}

// validateNativeCode es la variante PKCE para apps nativas: sin client
// authentication, el code_verifier prueba la continuidad del authorize
// request. client_secret está prohibido acá, correcto o no.
func (e *Engine) validateNativeCode(ctx context.Context, o *Outcome, client *repository.Client, auth *repository.Authorization) error {
	if o.params[ParamClientSecret] != "" {
		o.fail(ErrorInvalidRequest, descNativeClientSecret)
		return nil
	}
	code := o.params[ParamCode]
	if code == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamCode))
		return nil
	}
	verifier := o.params[ParamCodeVerifier]
	if verifier == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamCodeVerifier))
		return nil
	}

	if auth == nil {
		a, err := e.auths.FindByCode(ctx, code)
		if repository.IsNotFound(err) {
			o.fail(ErrorInvalidGrant, descInvalidGrant)
			return nil
		}
		if err != nil {
			return err
		}
		auth = a
	}
	if auth.ClientID != client.ID {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	if client.RedirectURI != "" {
		if o.params[ParamRedirectURI] == "" {
			o.fail(ErrorInvalidRequest, descMissingParam(ParamRedirectURI))
			return nil
		}
		if o.params[ParamRedirectURI] != client.RedirectURI {
			o.fail(ErrorRedirectURIMismatch, descRedirectURIMismatch)
			return nil
		}
	}
	// Un verifier que no reproduce el challenge equivale a un code inválido.
	if !securecode.PKCEVerify(auth.PKCEChallenge, verifier) {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	o.client = client
	o.authorization = auth
	return nil
}

// --- password ---

func (e *Engine) validatePassword(ctx context.Context, o *Outcome) error {
	if err := e.authenticateClient(ctx, o); err != nil || !o.OK() {
		return err
	}
	username := o.params[ParamUsername]
	if username == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamUsername))
		return nil
	}
	password := o.params[ParamPassword]
	if password == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamPassword))
		return nil
	}
	handler := e.handlers.passwordHandler()
	if handler == nil {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	auth, err := handler(ctx, o.client, username, password, ParseScope(o.params[ParamScope]))
	if err != nil {
		return err
	}
	if auth == nil {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	o.authorization = auth
	return nil
}

// --- client_credentials ---

func (e *Engine) validateClientCredentials(ctx context.Context, o *Outcome) error {
	if err := e.authenticateClient(ctx, o); err != nil || !o.OK() {
		return err
	}
	handler := e.handlers.clientCredentialsHandler()
	if handler == nil {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	auth, err := handler(ctx, o.client, o.client.OwnerID, ParseScope(o.params[ParamScope]))
	if err != nil {
		return err
	}
	if auth == nil {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	o.authorization = auth
	return nil
}

// --- assertion ---

func (e *Engine) validateAssertion(ctx context.Context, o *Outcome) error {
	if err := e.authenticateClient(ctx, o); err != nil || !o.OK() {
		return err
	}
	assertionType := o.params[ParamAssertionType]
	if assertionType == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamAssertionType))
		return nil
	}
	assertion := o.params[ParamAssertion]
	if assertion == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamAssertion))
		return nil
	}
	if u, err := url.Parse(assertionType); err != nil || !u.IsAbs() {
		o.fail(ErrorInvalidRequest, descAssertionTypeNotURI)
		return nil
	}
	if !e.handlers.allowAssertions(o.client) {
		o.fail(ErrorUnauthorizedClient, descAssertionUnavailable)
		return nil
	}
	handler := e.handlers.assertionHandler(assertionType)
	if handler == nil {
		o.fail(ErrorUnauthorizedClient, descAssertionUnavailable)
		return nil
	}
	auth, err := handler(ctx, o.client, assertion)
	if err != nil {
		return err
	}
	if auth == nil {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	o.authorization = auth
	return nil
}

// --- refresh_token ---

func (e *Engine) validateRefreshToken(ctx context.Context, o *Outcome) error {
	if err := e.authenticateClient(ctx, o); err != nil || !o.OK() {
		return err
	}
	refreshToken := o.params[ParamRefreshToken]
	if refreshToken == "" {
		o.fail(ErrorInvalidRequest, descMissingParam(ParamRefreshToken))
		return nil
	}
	auth, err := e.auths.FindByRefreshToken(ctx, refreshToken)
	if repository.IsNotFound(err) {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	if err != nil {
		return err
	}
	if auth.ClientID != o.client.ID {
		o.fail(ErrorInvalidGrant, descInvalidGrant)
		return nil
	}
	o.authorization = auth
	return nil
}
