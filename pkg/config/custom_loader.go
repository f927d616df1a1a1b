package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from the provided .env files.
// With no arguments it falls back to the default .env in the current working
// directory. When multiple files are given they are applied in order and
// later files take precedence over earlier ones, which makes layered
// configuration (base file plus per-environment override) straightforward.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		return godotenv.Load()
	}
	return godotenv.Overload(filenames...)
}

// MustLoadEnv works like LoadEnv but panics if any file cannot be loaded.
// Use it in main where a missing configuration file should prevent startup.
func MustLoadEnv(filenames ...string) {
	if err := LoadEnv(filenames...); err != nil {
		panic(fmt.Sprintf("Failed to load env files: %v", err))
	}
}

// ResetCache clears all cached configurations so subsequent Load calls parse
// the environment again. Intended for tests that mutate environment
// variables between cases.
func ResetCache() {
	globalCache.mu.Lock()
	globalCache.values = make(map[string]any)
	globalCache.onces = make(map[string]*sync.Once)
	globalCache.mu.Unlock()
}

// ForceReloadConfig parses the environment into v bypassing the cache, then
// stores the fresh value so later Load calls for the same type observe it.
// Needed after t.Setenv or LoadEnv changed variables a cached type already
// consumed.
func ForceReloadConfig[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	typeName := getTypeName[T]()
	globalCache.mu.Lock()
	globalCache.values[typeName] = *v
	globalCache.mu.Unlock()

	return nil
}
