package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophgate/internal/flagx"
	"github.com/dmitrijs2005/gophgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "24h" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	StoreBackend                string         `json:"store_backend"`
	DatabaseDSN                 string         `json:"database_dsn"`
	RedisAddr                   string         `json:"redis_addr"`
	RedisKeyPrefix              string         `json:"redis_key_prefix"`
	SecretKey                   string         `json:"secret_key"`
	SecretKeyFile               string         `json:"secret_key_file"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	BcryptCost                  int            `json:"bcrypt_cost"`
	HashPoolSize                int            `json:"hash_pool_size"`
	LogLevel                    string         `json:"log_level"`
	AdminUsername               string         `json:"admin_username"`
	AdminPassword               string         `json:"admin_password"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Only keys present with non-zero values override what is already set.
// A missing or invalid file panics: the operator asked for it explicitly.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisKeyPrefix, c.RedisKeyPrefix)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SecretKeyFile, c.SecretKeyFile)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.AdminUsername, c.AdminUsername)
	setString(&config.AdminPassword, c.AdminPassword)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.HashPoolSize != 0 {
		config.HashPoolSize = c.HashPoolSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
