package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load populates cfg from environment variables based on `env:"..."` struct
// tags. The default .env file is loaded once per process before the first
// parse; a missing file is not an error.
//
// Example:
//
//	type EngineConfig struct {
//		ProviderTimeout time.Duration `env:"ENGINE_PROVIDER_TIMEOUT" envDefault:"10s"`
//		MaxBatchSize    int           `env:"ENGINE_MAX_BATCH_SIZE" envDefault:"500"`
//	}
//
//	var cfg EngineConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilPointer
	}

	defaultEnvLoaded.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(cfg); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Used for configuration the
// process cannot start without.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
