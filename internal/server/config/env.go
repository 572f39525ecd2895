package config

import (
	"errors"
	"time"

	"github.com/joeshaw/envdecode"
)

// EnvConfig lists the GATE_* environment variables understood by the server.
type EnvConfig struct {
	EndpointAddrHTTP            string        `env:"GATE_HTTP_ADDR"`
	EndpointAddrGRPC            string        `env:"GATE_GRPC_ADDR"`
	StoreBackend                string        `env:"GATE_STORE"`
	DatabaseDSN                 string        `env:"GATE_DATABASE_DSN"`
	RedisAddr                   string        `env:"GATE_REDIS_ADDR"`
	RedisKeyPrefix              string        `env:"GATE_REDIS_KEY_PREFIX"`
	SecretKey                   string        `env:"GATE_SECRET_KEY"`
	SecretKeyFile               string        `env:"GATE_SECRET_KEY_FILE"`
	AccessTokenValidityDuration time.Duration `env:"GATE_ACCESS_TOKEN_TTL"`
	BcryptCost                  int           `env:"GATE_BCRYPT_COST"`
	HashPoolSize                int           `env:"GATE_HASH_POOL_SIZE"`
	LogLevel                    string        `env:"GATE_LOG_LEVEL"`
	AdminUsername               string        `env:"GATE_ADMIN_USERNAME"`
	AdminPassword               string        `env:"GATE_ADMIN_PASSWORD"`
}

// parseEnv overlays GATE_* variables onto config. Having none of them set is
// normal; a malformed value panics like a malformed config file does.
func parseEnv(config *Config) {
	var e EnvConfig
	if err := envdecode.Decode(&e); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return
		}
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, e.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, e.EndpointAddrGRPC)
	setString(&config.StoreBackend, e.StoreBackend)
	setString(&config.DatabaseDSN, e.DatabaseDSN)
	setString(&config.RedisAddr, e.RedisAddr)
	setString(&config.RedisKeyPrefix, e.RedisKeyPrefix)
	setString(&config.SecretKey, e.SecretKey)
	setString(&config.SecretKeyFile, e.SecretKeyFile)
	setString(&config.LogLevel, e.LogLevel)
	setString(&config.AdminUsername, e.AdminUsername)
	setString(&config.AdminPassword, e.AdminPassword)
	if e.AccessTokenValidityDuration != 0 {
		config.AccessTokenValidityDuration = e.AccessTokenValidityDuration
	}
	if e.BcryptCost != 0 {
		config.BcryptCost = e.BcryptCost
	}
	if e.HashPoolSize != 0 {
		config.HashPoolSize = e.HashPoolSize
	}
}
