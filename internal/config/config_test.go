package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("KERNEL_ENV", "testing")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Testing, cfg.Env)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 8, cfg.DispatchWorkers)
	assert.Equal(t, 1000, cfg.CDCBufferSize)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestValidateProductionRequiresJWTSecret(t *testing.T) {
	cfg := &Config{
		Env:               Production,
		RateLimitEnabled:  true,
		DispatchWorkers:   4,
		CDCBufferSize:     100,
		EnableDebugEndpoints: false,
		TestMode:          false,
	}

	err := cfg.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")

	cfg.JWTSecret = "s3cr3t"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDebugEndpointsInProduction(t *testing.T) {
	cfg := &Config{
		Env:              Production,
		RateLimitEnabled: true,
		DispatchWorkers:  4,
		CDCBufferSize:    100,
		JWTSecret:        "s3cr3t",
		EnableDebugEndpoints: true,
	}

	assert.ErrorContains(t, cfg.Validate(), "ENABLE_DEBUG_ENDPOINTS")
}

func TestIsDevelopmentTestingProduction(t *testing.T) {
	cfg := &Config{Env: Development}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsTesting())
	assert.False(t, cfg.IsProduction())
}
