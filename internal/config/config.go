// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads service configuration from defaults, a .env file, a
// YAML file, ACCOUNTS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/avatar"
)

// Avatar backends.
const (
	AvatarBackendDir = "dir"
	AvatarBackendS3  = "s3"
)

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" envPrefix:"HTTP_"`
	Metrics  MetricsConfig  `koanf:"metrics" envPrefix:"METRICS_"`
	Database DatabaseConfig `koanf:"database" envPrefix:"DATABASE_"`
	Auth     AuthConfig     `koanf:"auth" envPrefix:"AUTH_"`
	Avatar   AvatarConfig   `koanf:"avatar" envPrefix:"AVATAR_"`
	Log      LogConfig      `koanf:"log" envPrefix:"LOG_"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `koanf:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" env:"MAX_BODY_BYTES"`
	AllowedOrigins  []string      `koanf:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" env:"ADDR"`
}

// DatabaseConfig configures the PostgreSQL pool. URL wins over the
// individual connection parts.
type DatabaseConfig struct {
	URL             string        `koanf:"url" env:"URL"`
	Host            string        `koanf:"host" env:"HOST"`
	Name            string        `koanf:"name" env:"NAME"`
	User            string        `koanf:"user" env:"USER"`
	Password        string        `koanf:"password" env:"PASSWORD"`
	MaxConns        int32         `koanf:"max_conns" env:"MAX_CONNS"`
	MinConns        int32         `koanf:"min_conns" env:"MIN_CONNS"`
	AcquireTimeout  time.Duration `koanf:"acquire_timeout" env:"ACQUIRE_TIMEOUT"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" env:"CONNECT_TIMEOUT"`
	ConnectAttempts uint64        `koanf:"connect_attempts" env:"CONNECT_ATTEMPTS"`
}

// DSN returns URL, or a postgres:// URL assembled from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" || d.Host == "" {
		return d.URL
	}
	u := url.URL{Scheme: "postgres", Host: d.Host, Path: "/" + d.Name}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	return u.String()
}

// Validate checks only what is needed to reach the database.
func (d DatabaseConfig) Validate() error {
	v := &auth.ValidationError{}
	d.validate(v)
	if !v.Empty() {
		return oops.Code("CONFIG_INVALID").Wrap(v)
	}
	return nil
}

func (d DatabaseConfig) validate(v *auth.ValidationError) {
	if d.DSN() == "" {
		v.Add("database.url", "required")
	}
}

// AuthConfig configures token signing and password hashing.
type AuthConfig struct {
	// JWTSecret has no default and must come from configuration.
	JWTSecret string        `koanf:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `koanf:"token_ttl" env:"TOKEN_TTL"`
	Argon2    Argon2Config  `koanf:"argon2" envPrefix:"ARGON2_"`
}

// Argon2Config mirrors auth.Argon2Params.
type Argon2Config struct {
	Memory  uint32 `koanf:"memory" env:"MEMORY"`
	Time    uint32 `koanf:"time" env:"TIME"`
	Threads uint8  `koanf:"threads" env:"THREADS"`
	SaltLen uint32 `koanf:"salt_len" env:"SALT_LEN"`
	KeyLen  uint32 `koanf:"key_len" env:"KEY_LEN"`
}

// Params converts to hasher parameters.
func (a Argon2Config) Params() auth.Argon2Params {
	return auth.Argon2Params{
		Memory:  a.Memory,
		Time:    a.Time,
		Threads: a.Threads,
		SaltLen: a.SaltLen,
		KeyLen:  a.KeyLen,
	}
}

// AvatarConfig selects where avatar images are stored.
type AvatarConfig struct {
	Backend string         `koanf:"backend" env:"BACKEND"`
	Dir     string         `koanf:"dir" env:"DIR"`
	S3      AvatarS3Config `koanf:"s3" envPrefix:"S3_"`
}

// AvatarS3Config configures the S3 backend.
type AvatarS3Config struct {
	Bucket    string `koanf:"bucket" env:"BUCKET"`
	Region    string `koanf:"region" env:"REGION"`
	Endpoint  string `koanf:"endpoint" env:"ENDPOINT"`
	AccessKey string `koanf:"access_key" env:"ACCESS_KEY"`
	SecretKey string `koanf:"secret_key" env:"SECRET_KEY"`
}

// S3Config converts to the avatar package's S3 settings.
func (a AvatarConfig) S3Config() avatar.S3Config {
	return avatar.S3Config{
		Bucket:    a.S3.Bucket,
		Region:    a.S3.Region,
		Endpoint:  a.S3.Endpoint,
		AccessKey: a.S3.AccessKey,
		SecretKey: a.S3.SecretKey,
	}
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `koanf:"format" env:"FORMAT"`
	Level  string `koanf:"level" env:"LEVEL"`
}

// Default returns the compiled-in defaults.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			MaxConns:        5,
			AcquireTimeout:  5 * time.Second,
			ConnectTimeout:  5 * time.Second,
			ConnectAttempts: 5,
		},
		Auth: AuthConfig{
			TokenTTL: auth.DefaultTokenTTL,
			Argon2: Argon2Config{
				Memory:  argon.Memory,
				Time:    argon.Time,
				Threads: argon.Threads,
				SaltLen: argon.SaltLen,
				KeyLen:  argon.KeyLen,
			},
		},
		Avatar: AvatarConfig{Backend: AvatarBackendDir, Dir: "data/avatars"},
		Log:    LogConfig{Format: "json", Level: "info"},
	}
}

// Validate reports every invalid setting at once as an auth.ValidationError
// keyed by configuration key.
func (c Config) Validate() error {
	v := &auth.ValidationError{}

	if c.HTTP.Addr == "" {
		v.Add("http.addr", "required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		v.Add("http.max_body_bytes", "must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		v.Add("http.shutdown_timeout", "must be positive")
	}

	c.Database.validate(v)
	if c.Database.MaxConns <= 0 {
		v.Add("database.max_conns", "must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		v.Add("database.min_conns", "must be between 0 and max_conns")
	}
	if c.Database.AcquireTimeout <= 0 {
		v.Add("database.acquire_timeout", "must be positive")
	}
	if c.Database.ConnectAttempts == 0 {
		v.Add("database.connect_attempts", "must be at least 1")
	}

	if c.Auth.JWTSecret == "" {
		v.Add("auth.jwt_secret", "required")
	} else if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		v.Add("auth.jwt_secret", "must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		v.Add("auth.token_ttl", "must be positive")
	}
	if err := c.Auth.Argon2.Params().Validate(); err != nil {
		v.Add("auth.argon2", err.Error())
	}

	switch c.Avatar.Backend {
	case AvatarBackendDir:
		if c.Avatar.Dir == "" {
			v.Add("avatar.dir", "required for the dir backend")
		}
	case AvatarBackendS3:
		if c.Avatar.S3.Bucket == "" {
			v.Add("avatar.s3.bucket", "required for the s3 backend")
		}
	default:
		v.Add("avatar.backend", "must be dir or s3")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		v.Add("log.format", "must be json or text")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		v.Add("log.level", "must be debug, info, warn or error")
	}

	if !v.Empty() {
		return oops.Code("CONFIG_INVALID").Wrap(v)
	}
	return nil
}
