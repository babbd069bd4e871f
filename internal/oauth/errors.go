package oauth

import "errors"

// Códigos de error OAuth2 del token endpoint (RFC6749 §5.2 + extensiones).
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorInvalidScope         = "invalid_scope"
	ErrorRedirectURIMismatch  = "redirect_uri_mismatch"
	ErrorUnauthorizedClient   = "unauthorized_client"
)

// Descripciones del wire contract. Los strings son parte del contrato y se
// comparan verbatim por los clients; no reformular.
const (
	descInvalidGrant         = "The access grant you supplied is invalid"
	descInvalidScope         = "The request scope was never granted by the user"
	descRedirectURIMismatch  = "Parameter redirect_uri does not match registered URI"
	descClientSecretMismatch = "Parameter client_secret does not match"
	descAssertionUnavailable = "Client cannot use the given assertion type"
	descAssertionTypeNotURI  = "Parameter assertion_type must be an absolute URI"
	descNativeClientSecret   = "[:client_secret] must not be provided for native app"
)

func descMissingParam(name string) string {
	return "Missing required parameter " + name
}

func descUnknownGrantType(value string) string {
	return "The grant type " + value + " is not recognized"
}

func descUnknownClientID(value string) string {
	return "Unknown client ID " + value
}

var (
	// ErrGrantConsumed lo retorna Outcome.Commit cuando pierde la carrera por
	// un code/refresh ya canjeado; el Outcome queda marcado invalid_grant.
	ErrGrantConsumed = errors.New("oauth: grant already consumed")

	// ErrNotExchangeable lo retorna Commit sobre un Outcome con error o ya
	// canjeado.
	ErrNotExchangeable = errors.New("oauth: outcome is not exchangeable")
)
