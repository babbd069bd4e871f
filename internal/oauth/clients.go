package oauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantex/internal/domain/repository"
	"github.com/dropDatabas3/grantex/internal/observability/logger"
	"github.com/dropDatabas3/grantex/internal/security/securecode"
)

// createAttempts reintentos de Create ante una carrera de client_id duplicado.
const createAttempts = 3

// Clients implementa el ciclo de vida administrativo de clients OAuth2.
type Clients struct {
	repo   repository.ClientRepository
	scheme securecode.Scheme
}

// NewClients crea el service de clients.
func NewClients(repo repository.ClientRepository, scheme securecode.Scheme) *Clients {
	return &Clients{repo: repo, scheme: scheme}
}

// CreateClientInput datos para registrar un client.
type CreateClientInput struct {
	Name        string
	RedirectURI string
	Type        string // "" = confidential
	OwnerID     string
}

// Create registra un client: valida presencia y formato, genera client_id
// único y un secret aleatorio, y persiste solo el hash bcrypt del secret.
// El secret en claro se retorna UNA vez; no es recuperable después.
func (s *Clients) Create(ctx context.Context, in CreateClientInput) (*repository.Client, string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("clients.create"))

	typ := in.Type
	if typ == "" {
		typ = repository.ClientTypeConfidential
	}
	if typ != repository.ClientTypeConfidential && typ != repository.ClientTypeNative {
		return nil, "", fmt.Errorf("%w: unknown client type %q", repository.ErrInvalidInput, in.Type)
	}
	if in.Name == "" {
		return nil, "", fmt.Errorf("%w: name is required", repository.ErrInvalidInput)
	}
	if in.RedirectURI == "" {
		return nil, "", fmt.Errorf("%w: redirect_uri is required", repository.ErrInvalidInput)
	}
	if u, err := url.Parse(in.RedirectURI); err != nil || !u.IsAbs() {
		return nil, "", fmt.Errorf("%w: redirect_uri must be an absolute URI", repository.ErrInvalidInput)
	}

	secret, err := s.scheme.Generate()
	if err != nil {
		return nil, "", err
	}
	secretHash, err := s.scheme.SecretHash(secret)
	if err != nil {
		return nil, "", err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		clientID, err := s.scheme.GenerateUnique(ctx, func(ctx context.Context, candidate string) (bool, error) {
			_, err := s.repo.GetByClientID(ctx, candidate)
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

		client := &repository.Client{
			ID:          uuid.NewString(),
			ClientID:    clientID,
			Name:        in.Name,
			Type:        typ,
			RedirectURI: in.RedirectURI,
			SecretHash:  secretHash,
			OwnerID:     in.OwnerID,
			CreatedAt:   time.Now().UTC(),
		}
		err = s.repo.Create(ctx, client)
		if err == nil {
			log.Info("client registered", logger.ClientID(clientID), logger.String("type", typ))
			return client, secret, nil
		}
		if !repository.IsConflict(err) {
			return nil, "", err
		}
		// Conflict: si el name está tomado no hay retry que valga; si fue el
		// client_id (carrera contra el predicate), regenerar y reintentar.
		if _, nameErr := s.repo.GetByName(ctx, in.Name); nameErr == nil {
			return nil, "", fmt.Errorf("%w: client name %q already taken", repository.ErrConflict, in.Name)
		}
		log.Warn("client_id collision on create, retrying")
	}
	return nil, "", fmt.Errorf("%w: could not create client after %d attempts", repository.ErrConflict, createAttempts)
}

// Delete elimina un client y todos sus grants (cascading destroy del adapter).
func (s *Clients) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Authenticate valida el secret presentado: los clients native no tienen
// secret usable (siempre pasa, PKCE hace la prueba real); los confidential
// se verifican contra el hash bcrypt.
func Authenticate(client *repository.Client, presentedSecret string) bool {
	if client.IsNative() {
		return true
	}
	return securecode.VerifySecret(client.SecretHash, presentedSecret)
}
