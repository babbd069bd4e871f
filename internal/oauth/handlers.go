package oauth

import (
	"context"
	"sync"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
)

// PasswordHandlerFunc verifica credenciales de resource owner por fuera del
// engine (directorio, IdP, etc.) y retorna el grant otorgado.
// Un retorno (nil, nil) significa credenciales inválidas → invalid_grant.
type PasswordHandlerFunc func(ctx context.Context, client *repository.Client, username, password string, scopes []string) (*repository.Authorization, error)

// ClientCredentialsHandlerFunc sintetiza el grant para el flujo M2M.
// Recibe el owner opaco del client; el engine no lo interpreta.
type ClientCredentialsHandlerFunc func(ctx context.Context, client *repository.Client, ownerID string, scopes []string) (*repository.Authorization, error)

// AssertionHandlerFunc verifica una assertion de terceros (claim federado)
// para el assertion_type con el que fue registrado.
// (nil, nil) = assertion rechazada → invalid_grant.
type AssertionHandlerFunc func(ctx context.Context, client *repository.Client, assertion string) (*repository.Authorization, error)

// AssertionFilterFunc restringe qué clients pueden usar assertion grants.
type AssertionFilterFunc func(client *repository.Client) bool

// HandlerRegistry guarda los callbacks del host para los grant types que
// requieren verificación externa. Es configuración de proceso: se registra
// una vez en startup, no en el hot path del request. El reset explícito
// existe para aislamiento de tests y operación administrativa.
type HandlerRegistry struct {
	mu                sync.RWMutex
	password          PasswordHandlerFunc
	clientCredentials ClientCredentialsHandlerFunc
	assertions        map[string]AssertionHandlerFunc
	assertionFilter   AssertionFilterFunc
}

// NewHandlerRegistry crea un registry vacío.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{assertions: make(map[string]AssertionHandlerFunc)}
}

// HandlePasswords registra el handler del grant password.
func (r *HandlerRegistry) HandlePasswords(fn PasswordHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.password = fn
}

// HandleClientCredentials registra el handler del grant client_credentials.
func (r *HandlerRegistry) HandleClientCredentials(fn ClientCredentialsHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clientCredentials = fn
}

// HandleAssertions registra un handler para un assertion_type exacto (URI).
func (r *HandlerRegistry) HandleAssertions(assertionType string, fn AssertionHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertions[assertionType] = fn
}

// FilterAssertions registra el predicate que decide qué clients pueden usar
// assertion grants. Sin filtro registrado, todos pueden.
func (r *HandlerRegistry) FilterAssertions(fn AssertionFilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertionFilter = fn
}

// ClearAssertionHandlers borra handlers y filtro de assertions.
func (r *HandlerRegistry) ClearAssertionHandlers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertions = make(map[string]AssertionHandlerFunc)
	r.assertionFilter = nil
}

func (r *HandlerRegistry) passwordHandler() PasswordHandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.password
}

func (r *HandlerRegistry) clientCredentialsHandler() ClientCredentialsHandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clientCredentials
}

func (r *HandlerRegistry) assertionHandler(assertionType string) AssertionHandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assertions[assertionType]
}

// allowAssertions aplica el filtro; nil client nunca pasa.
func (r *HandlerRegistry) allowAssertions(client *repository.Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if client == nil {
		return false
	}
	if r.assertionFilter == nil {
		return true
	}
	return r.assertionFilter(client)
}
