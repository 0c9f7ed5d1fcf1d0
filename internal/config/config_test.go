package config

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PUSHINPAY_API_KEY", "")
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Parse([]byte("database:\n  url: postgres://x\nredis:\n  url: localhost:6379\nauth:\n  jwt_secret: s\n"), true)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !cfg.Runtime.Dev || cfg.HTTP.Port != 8080 || cfg.Payment.OfferTTL != 30*time.Minute || cfg.Activation.CodeTTL != 10*time.Minute {
			t.Errorf("defaults not applied: %+v", cfg)
		}
		if cfg.Telegram.APIEndpoint != "https://api.telegram.org/bot%s/%s" {
			t.Errorf("telegram endpoint = %q", cfg.Telegram.APIEndpoint)
		}
		if cfg.Telegram.Locale != "en" {
			t.Errorf("telegram locale = %q", cfg.Telegram.Locale)
		}
	})

	t.Run("env overrides secrets", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "from-env")
		t.Setenv("PUSHINPAY_API_KEY", "pp-key")
		cfg, err := Parse([]byte("database:\n  url: postgres://x\nredis:\n  url: localhost:6379\nauth:\n  jwt_secret: file\npayment:\n  offer_ttl: 5m\n"), false)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if cfg.Auth.JWTSecret != "from-env" || cfg.Payment.PushinPay.APIKey != "pp-key" {
			t.Errorf("env not applied: %+v", cfg.Auth)
		}
		if cfg.Payment.OfferTTL != 5*time.Minute {
			t.Errorf("offer ttl = %s", cfg.Payment.OfferTTL)
		}
	})

	t.Run("validation", func(t *testing.T) {
		for name, doc := range map[string]string{
			"no database": "redis:\n  url: r\nauth:\n  jwt_secret: s\n",
			"no redis":    "database:\n  url: d\nauth:\n  jwt_secret: s\n",
			"no secret":   "database:\n  url: d\nredis:\n  url: r\n",
		} {
			if _, err := Parse([]byte(doc), false); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
	})
}

func TestSandboxActive(t *testing.T) {
	cases := []struct {
		enabled, dev, want bool
	}{
		{enabled: true, dev: true, want: true},
		{enabled: true, dev: false, want: false},
		{enabled: false, dev: true, want: false},
	}
	for _, tc := range cases {
		var cfg Config
		cfg.Payment.Sandbox.Enabled = tc.enabled
		cfg.Runtime.Dev = tc.dev
		if got := cfg.SandboxActive(); got != tc.want {
			t.Errorf("enabled=%v dev=%v: SandboxActive() = %v", tc.enabled, tc.dev, got)
		}
	}
}
