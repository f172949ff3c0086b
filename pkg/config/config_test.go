package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg := fromViper(newViper(nil))

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, RefreshTokenTTL, cfg.JWT.RefreshExpiration)
	assert.Equal(t, "dev_secret_refresh", cfg.JWT.RefreshSecret)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".pdf"}, cfg.Uploads.AllowedExtensions)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploads.MaxFileSizeBytes)
	assert.Equal(t, 5000, cfg.Incidents.ExportCSVLimit)
	assert.False(t, cfg.Cookie.Secure)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestProductionForcesSecureCookieAndRateLimit(t *testing.T) {
	cfg := fromViper(newViper(map[string]interface{}{
		"ENV":                      EnvProduction,
		"JWT_REFRESH_SECRET":       "other",
		"REFRESH_TOKEN_EXPIRATION": "1h",
	}))

	assert.True(t, cfg.Cookie.Secure)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "other", cfg.JWT.RefreshSecret)
	assert.Equal(t, RefreshTokenTTL, cfg.JWT.RefreshExpiration)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
