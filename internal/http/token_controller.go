// Package http expone el token endpoint y la plomería del servidor.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/grantex/internal/oauth"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
)

// TokenController maneja POST /oauth2/token.
type TokenController struct {
	engine *oauth.Engine
}

// NewTokenController crea el controller.
func NewTokenController(engine *oauth.Engine) *TokenController {
	return &TokenController{engine: engine}
}

// errorResponse es el cuerpo de error RFC 6749 §5.2.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Token canjea un grant por tokens.
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, oauth.ErrorInvalidRequest, "Only POST method is allowed")
		return
	}

	// 64KB alcanza de sobra para un form de token
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrorInvalidRequest, "Invalid form data")
		return
	}

	params := make(oauth.Params, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	outcome, err := c.engine.Exchange(ctx, params)
	if err != nil {
		log.Error("exchange failed", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	log = log.With(logger.GrantType(outcome.GrantType()))

	if !outcome.OK() {
		observeExchange(outcome.GrantType(), outcome.ErrorCode())
		writeOutcomeError(w, outcome)
		return
	}

	resp, err := outcome.Commit(ctx)
	switch {
	case errors.Is(err, oauth.ErrGrantConsumed):
		// perdió la carrera contra otro canje del mismo grant
		log.Warn("grant already consumed")
		observeExchange(outcome.GrantType(), outcome.ErrorCode())
		writeOutcomeError(w, outcome)
		return
	case err != nil:
		log.Error("commit failed", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	observeExchange(outcome.GrantType(), "ok")
	log.Info("tokens issued", logger.AuthorizationID(outcome.Authorization().ID))
	writeTokenResponse(w, resp)
}

func writeOutcomeError(w http.ResponseWriter, outcome *oauth.Outcome) {
	status := http.StatusBadRequest
	switch outcome.ErrorCode() {
	case oauth.ErrorInvalidClient, oauth.ErrorUnauthorizedClient:
		status = http.StatusUnauthorized
	}
	writeOAuthError(w, status, outcome.ErrorCode(), outcome.ErrorDescription())
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	setNoStore(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, ErrorDescription: description})
}

func writeTokenResponse(w http.ResponseWriter, resp *oauth.TokenResponse) {
	setNoStore(w)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// setNoStore marca la respuesta como no cacheable (RFC 6749 §5.1).
func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
