// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable, e.g. ACCOUNTS_AUTH_JWT_SECRET.
const EnvPrefix = "ACCOUNTS_"

// DefaultEnvFile is read when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML file. A missing file is an error.
	File string
	// EnvFile is a dotenv file whose values fill variables absent from the
	// environment. Empty means DefaultEnvFile, which may be missing.
	EnvFile string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
	// Flags contributes flags the user explicitly set.
	Flags *pflag.FlagSet
	// DatabaseOnly limits validation to the database settings, for commands
	// that never serve traffic.
	DatabaseOnly bool
}

// Load layers every source over Default and validates the result.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("file", opts.File).Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	environ, err := environment(opts)
	if err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if opts.Flags != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(opts.Flags, ".", nil, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	validate := cfg.Validate
	if opts.DatabaseOnly {
		validate = cfg.Database.Validate
	}
	if err := validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// environment merges the dotenv file under the real (or injected)
// environment. Real variables win.
func environment(opts LoadOptions) (map[string]string, error) {
	environ := opts.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	path := opts.EnvFile
	optional := path == ""
	if optional {
		path = DefaultEnvFile
	}

	dotenv, err := godotenv.Read(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return environ, nil
		}
		return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("file", path).Wrap(err)
	}

	merged := make(map[string]string, len(environ)+len(dotenv))
	for k, v := range dotenv {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

// BindDatabaseFlags registers the database connection override on fs.
func BindDatabaseFlags(fs *pflag.FlagSet) {
	fs.String("database.url", "", "PostgreSQL connection URL")
}

// BindFlags registers the command-line overrides on fs. Flag names are the
// configuration keys.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	BindDatabaseFlags(fs)
	fs.String("http.addr", d.HTTP.Addr, "public API listen address")
	fs.String("metrics.addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.Int32("database.max_conns", d.Database.MaxConns, "maximum pooled database connections")
	fs.Duration("auth.token_ttl", d.Auth.TokenTTL, "bearer token lifetime")
	fs.String("avatar.backend", d.Avatar.Backend, "avatar storage backend (dir or s3)")
	fs.String("avatar.dir", d.Avatar.Dir, "avatar directory for the dir backend")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
}
