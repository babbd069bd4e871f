package repository

import (
	"context"
	"time"
)

const (
	// ClientTypeConfidential clientes con secret (server-side).
	ClientTypeConfidential = "confidential"
	// ClientTypeNative apps nativas/públicas sin secret usable; usan PKCE.
	ClientTypeNative = "native"
)

// Client representa un cliente OAuth2 registrado.
type Client struct {
	ID       string // UUID interno
	ClientID string // identificador público, inmutable
	Name     string
	Type     string // "confidential" | "native"

	// RedirectURI URI absoluta registrada. Vacía solo para clients native.
	RedirectURI string

	// SecretHash hash bcrypt del secret. El secret en claro se entrega una
	// sola vez al crear el client y no es recuperable después.
	SecretHash string

	// OwnerID referencia opaca a la entidad que registró el client.
	// El core no la interpreta; solo la pasa a los grant handlers.
	OwnerID string

	CreatedAt time.Time
}

// IsNative retorna true si el client es una app nativa (sin secret).
func (c *Client) IsNative() bool {
	return c.Type == ClientTypeNative
}

// ClientRepository define operaciones de persistencia sobre clients.
type ClientRepository interface {
	// Create persiste un client nuevo.
	// Retorna ErrConflict si client_id o name ya existen.
	Create(ctx context.Context, client *Client) error

	// GetByClientID busca por el identificador público.
	// Retorna ErrNotFound si no existe.
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// GetByID busca por UUID interno (resolución indirecta vía grant).
	GetByID(ctx context.Context, id string) (*Client, error)

	// GetByName busca por nombre (único).
	GetByName(ctx context.Context, name string) (*Client, error)

	// Delete elimina un client y, en cascada, sus authorizations.
	Delete(ctx context.Context, id string) error
}
