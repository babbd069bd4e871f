package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar del dominio. Mantener las keys estables: los dashboards
// filtran por ellas.

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// ClientID crea un campo para el client_id público OAuth.
func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

// AuthorizationID crea un campo para el ID interno del grant.
func AuthorizationID(v string) zap.Field {
	return zap.String("authorization_id", v)
}

// GrantType crea un campo para el grant type del canje.
func GrantType(v string) zap.Field {
	return zap.String("grant_type", v)
}

// Driver crea un campo para el driver de storage.
func Driver(v string) zap.Field {
	return zap.String("driver", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (controller, service, engine, store).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}
