package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{"PAGE_LIMIT", "WORKERS", "MAX_RETRIES", "REQUEST_TIMEOUT_SECONDS", "DETECTION_THRESHOLD", "MIN_TOKENS", "MONGO_URI"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.PageLimit)
	require.Equal(t, 10, cfg.Workers)
	require.Equal(t, 50, cfg.MaxRetries)
	require.Equal(t, 15*time.Second, cfg.RequestTimeout)
	require.InDelta(t, 0.33, cfg.DetectionThreshold, 1e-9)
	require.Equal(t, 30, cfg.MinTokens)
	require.Equal(t, "CN", cfg.ExcludedRegion)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PAGE_LIMIT", "3")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "2")
	t.Setenv("DETECTION_THRESHOLD", "0.8")
	t.Setenv("WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.PageLimit)
	require.Equal(t, 2*time.Second, cfg.RequestTimeout)
	require.InDelta(t, 0.8, cfg.DetectionThreshold, 1e-9)
	require.Equal(t, 10, cfg.Workers, "malformed values fall back to defaults")
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.DetectionThreshold = 1
	require.Error(t, cfg.Validate())

	cfg.DetectionThreshold = -0.1
	require.Error(t, cfg.Validate())
}

func TestValidateServerRequiresSecrets(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.ValidateServer())

	cfg.MongoURI = "mongodb://localhost:27017"
	require.ErrorContains(t, cfg.ValidateServer(), "JWT_SECRET")

	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.ValidateServer())
}
