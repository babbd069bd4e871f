// Package jwt implementa el decoder de bearers estructurados: access tokens
// firmados por un issuer externo que embeben el id del grant en lugar de ser
// opacos. El engine solo necesita ese id; acá no se emiten tokens.
package jwt

import (
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken cubre cualquier token que no decodifica o no valida.
// El caller lo trata como "no existe tal grant", sin retry.
var ErrInvalidToken = errors.New("jwt: invalid token")

// AuthorizationClaim es la claim que lleva el id del grant.
const AuthorizationClaim = "jti"

// Decoder valida firma HMAC y extrae el authorization id de las claims.
type Decoder struct {
	secret []byte
	issuer string // si no es "", se exige iss exacto
}

// NewDecoder crea un decoder HS256 con el secret compartido del issuer.
func NewDecoder(secret []byte, issuer string) *Decoder {
	return &Decoder{secret: secret, issuer: issuer}
}

// Decode valida el token y retorna el authorization id embebido.
// Firma inválida, claims faltantes o exp vencido → ErrInvalidToken.
func (d *Decoder) Decode(raw string) (string, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		return d.secret, nil
	}

	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithExpirationRequired(),
	}
	if d.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(d.issuer))
	}

	tok, err := jwtv5.Parse(raw, keyfunc, opts...)
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	id, _ := claims[AuthorizationClaim].(string)
	if id == "" {
		return "", fmt.Errorf("%w: missing %s claim", ErrInvalidToken, AuthorizationClaim)
	}
	return id, nil
}
