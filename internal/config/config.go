// Package config carga la configuración YAML del servidor con overrides por env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | postgres | redis
		DSN    string `yaml:"dsn"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Tokens struct {
		// TTL del access grant, formato time.ParseDuration.
		AccessTTL string `yaml:"access_ttl"`
		// Emitir refresh tokens junto con el access token.
		IssueRefresh bool `yaml:"issue_refresh"`
		// Rotar el refresh token en cada canje refresh_token.
		RotateRefresh bool `yaml:"rotate_refresh"`
	} `yaml:"tokens"`

	// JWT habilita la resolución de access tokens estructurados emitidos por
	// un issuer externo. Si Secret queda vacío sólo se aceptan tokens opacos.
	JWT struct {
		Secret string `yaml:"secret"`
		Issuer string `yaml:"issuer"`
	} `yaml:"jwt"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Tokens.AccessTTL == "" {
		c.Tokens.AccessTTL = "1h"
	}

	// validate string durations
	if _, err := time.ParseDuration(c.Tokens.AccessTTL); err != nil {
		return nil, err
	}

	c.applyEnvOverrides()
	return &c, nil
}

// AccessTTL retorna el TTL parseado; Load ya validó el formato.
func (c *Config) AccessTTL() time.Duration {
	d, _ := time.ParseDuration(c.Tokens.AccessTTL)
	return d
}

// applyEnvOverrides pisa valores del YAML con variables de entorno.
// Útil cuando el DSN o el secret no viven en el archivo.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvBool("TOKENS_ISSUE_REFRESH"); ok {
		c.Tokens.IssueRefresh = v
	}
	if v, ok := getEnvBool("TOKENS_ROTATE_REFRESH"); ok {
		c.Tokens.RotateRefresh = v
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
