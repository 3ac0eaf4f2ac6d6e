package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/config"
)

type testConfig struct {
	Addr    string        `env:"TEST_ADDR" envDefault:":9090"`
	Timeout time.Duration `env:"TEST_TIMEOUT" envDefault:"15s"`
	Retries int           `env:"TEST_RETRIES" envDefault:"3"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TEST_ADDR", ":8181")
	t.Setenv("TEST_TIMEOUT", "1m")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, ":8181", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.Timeout)
}

func TestLoad_NilPointer(t *testing.T) {
	err := config.Load[testConfig](nil)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("TEST_RETRIES", "not-a-number")

	var cfg testConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}
