// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC so timestamps written to the history log never drift.
//  2. Load .env via godotenv (non-fatal if absent).
//  3. Resolve *_FILE variables through the SecretProvider and inject the
//     values under the target name.
//  4. Populate Config with envconfig.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate with go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks a variable whose value is a path to the secret. For
// example DATABASE_URL_FILE=/run/secrets/db populates DATABASE_URL.
const secretFileSuffix = "_FILE"

// secretTimeout bounds secret resolution at startup.
const secretTimeout = 10 * time.Second

type envLookup func(key string) (string, bool)

type envSet func(key, value string) error

type environ func() []string

// loaderDeps holds injectable dependencies so tests need not touch the
// process environment.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the configuration. A nil provider resolves
// *_FILE variables from the local filesystem.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	if deps.dotenv != nil {
		_ = deps.dotenv()
	}

	if provider == nil {
		provider = NewFileSecretProvider()
	}
	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}

	return &cfg, nil
}

// resolveSecretFiles scans the environment for *_FILE variables, resolves
// them in one batch and sets the target variables. A target that is already
// set wins over its file.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string][]string)
	var paths []string

	for _, entry := range deps.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, secretFileSuffix) || value == "" {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if target == "" {
			continue
		}
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		if _, seen := pathToTarget[value]; !seen {
			paths = append(paths, value)
		}
		pathToTarget[value] = append(pathToTarget[value], target)
	}
	if len(paths) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, pathToTarget[path]...)
			continue
		}
		for _, target := range pathToTarget[path] {
			if err := deps.setEnv(target, value); err != nil {
				return &ConfigError{
					Type:    ErrSecretResolution,
					Message: fmt.Sprintf("failed to set resolved value for %s", target),
					Err:     err,
				}
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret files not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
