// Package securecode genera identificadores y secretos opacos no adivinables,
// y provee los hashes para lookup (tokens/códigos) y para secrets (bcrypt).
//
// Dos familias de hash, a propósito:
//   - Hashify: SHA-256 determinista, para valores de alta entropía generados
//     por este mismo paquete (access/refresh tokens, authorization codes).
//     Necesario para lookup por igualdad en el store.
//   - SecretHash/VerifySecret: bcrypt, para client secrets que pueden no venir
//     de nuestro generador.
package securecode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultByteLen bytes de entropía para tokens y códigos (256 bits).
const DefaultByteLen = 32

// maxGenerateAttempts limita el retry loop de GenerateUnique.
// Con 256 bits de entropía una colisión real es señal de un problema operacional.
const maxGenerateAttempts = 10

// ErrGenerateExhausted se retorna cuando GenerateUnique agota los reintentos.
var ErrGenerateExhausted = fmt.Errorf("securecode: exhausted %d attempts generating a unique value", maxGenerateAttempts)

// ExistsFunc reporta si un candidato ya existe (true = colisión, reintentar).
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Scheme implementa la generación y verificación de códigos seguros.
// Zero value usable: Scheme{} usa DefaultByteLen.
type Scheme struct {
	// ByteLen bytes de entropía por valor generado. 0 = DefaultByteLen.
	ByteLen int

	// BcryptCost costo para SecretHash. 0 = bcrypt.DefaultCost.
	BcryptCost int
}

// Generate produce un string aleatorio base64url sin padding.
func (s Scheme) Generate() (string, error) {
	n := s.ByteLen
	if n <= 0 {
		n = DefaultByteLen
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("securecode: rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateUnique genera un valor aleatorio y consulta exists; si el candidato
// ya existe reintenta con uno nuevo, acotado por maxGenerateAttempts.
// Un error del predicate corta el loop y se propaga tal cual.
func (s Scheme) GenerateUnique(ctx context.Context, exists ExistsFunc) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		candidate, err := s.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrGenerateExhausted
}

// Hashify devuelve sha256(raw) en base64url sin padding (para guardar en DB).
func Hashify(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SecretHash devuelve el hash bcrypt de un secret en claro.
func (s Scheme) SecretHash(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("securecode: empty secret")
	}
	cost := s.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", fmt.Errorf("securecode: bcrypt: %w", err)
	}
	return string(h), nil
}

// VerifySecret compara un candidato contra un hash bcrypt almacenado.
func VerifySecret(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// PKCEChallenge aplica el transform S256: base64url(sha256(verifier)).
func PKCEChallenge(verifier string) string {
	return Hashify(verifier)
}

// PKCEVerify compara el challenge almacenado contra el derivado del verifier
// presentado. Comparación en tiempo constante.
func PKCEVerify(storedChallenge, verifier string) bool {
	return ConstantTimeEquals(storedChallenge, PKCEChallenge(verifier))
}

// ConstantTimeEquals compara dos strings sin filtrar información por timing.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
