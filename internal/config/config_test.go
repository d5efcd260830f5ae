package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{URL: "postgres://localhost/tutoring"},
		JWT:      JWTConfig{Secret: "secret"},
		PayHere: PayHereConfig{
			Mode:           "sandbox",
			MerchantID:     "1221149",
			MerchantSecret: "merchant-secret",
			Currency:       "LKR",
		},
		Reservation: ReservationConfig{HoldSeconds: 900, TickInterval: time.Second},
		SMS:         SMSConfig{Mode: "dev"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Missing merchant ID", func(t *testing.T) {
		cfg := validConfig()
		cfg.PayHere.MerchantID = ""
		assert.EqualError(t, cfg.Validate(), "PAYHERE_MERCHANT_ID is required")
	})

	t.Run("Missing merchant secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.PayHere.MerchantSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("Invalid mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.PayHere.Mode = "staging"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Zero hold", func(t *testing.T) {
		cfg := validConfig()
		cfg.Reservation.HoldSeconds = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("Remote hash endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.PayHere.HashEndpoint = "https://signer.edimy.lk/api/v1/payments/hash"
		assert.NoError(t, cfg.Validate())

		cfg.PayHere.HashEndpoint = "http://localhost:9090/api/v1/payments/hash"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Hash endpoint pointing at itself", func(t *testing.T) {
		for _, endpoint := range []string{
			"http://localhost:8080/api/v1/payments/hash",
			"http://127.0.0.1:8080/api/v1/payments/hash/",
		} {
			cfg := validConfig()
			cfg.PayHere.HashEndpoint = endpoint
			assert.ErrorContains(t, cfg.Validate(), "points at this service", endpoint)
		}
	})

	t.Run("Malformed hash endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.PayHere.HashEndpoint = "signer:9090"
		assert.ErrorContains(t, cfg.Validate(), "invalid PAYHERE_HASH_ENDPOINT")
	})

	t.Run("Production SMS without key", func(t *testing.T) {
		cfg := validConfig()
		cfg.SMS = SMSConfig{Mode: "production", Method: "url"}
		assert.Error(t, cfg.Validate())
	})
}

func TestScriptURLs(t *testing.T) {
	p := PayHereConfig{
		Mode:                "sandbox",
		SandboxScriptURL:    "https://sandbox.payhere.lk/lib/payhere.js",
		ProductionScriptURL: "https://www.payhere.lk/lib/payhere.js",
	}

	primary, fallback := p.ScriptURLs()
	assert.Equal(t, p.SandboxScriptURL, primary)
	assert.Equal(t, p.ProductionScriptURL, fallback)

	p.Mode = "live"
	primary, fallback = p.ScriptURLs()
	assert.Equal(t, p.ProductionScriptURL, primary)
	assert.Equal(t, p.SandboxScriptURL, fallback)
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_ORIGINS", " https://a.lk , ,https://b.lk")
	require.Equal(t, []string{"https://a.lk", "https://b.lk"}, getEnvAsSlice("TEST_ORIGINS", nil))

	t.Setenv("TEST_ORIGINS", " , ")
	assert.Equal(t, []string{"*"}, getEnvAsSlice("TEST_ORIGINS", []string{"*"}))
}
