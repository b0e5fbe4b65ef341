package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("GATEWAY_SERVER_KEY", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.GatewayServerKey != "" {
		t.Fatalf("expected empty GATEWAY_SERVER_KEY when unset, got %q", cfg.GatewayServerKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ALLOWED_ORIGIN", "ACCESS_TOKEN_TTL_MINUTES", "TAX_RATE_PERCENT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.TaxRatePercent != 11 {
		t.Fatalf("expected default tax rate 11, got %v", cfg.TaxRatePercent)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TAX_RATE_PERCENT", "10.5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("GATEWAY_SERVER_KEY", "  key-with-padding  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.TaxRatePercent != 10.5 {
		t.Fatalf("expected tax rate 10.5, got %v", cfg.TaxRatePercent)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("expected token TTL 60, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.GatewayServerKey != "key-with-padding" {
		t.Fatalf("expected trimmed gateway key, got %q", cfg.GatewayServerKey)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")
	t.Setenv("TAX_RATE_PERCENT", "-3")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token TTL, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.TaxRatePercent != 11 {
		t.Fatalf("expected fallback tax rate, got %v", cfg.TaxRatePercent)
	}
}
