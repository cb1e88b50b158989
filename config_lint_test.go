package authcore

import (
	"slices"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/tokenstore"
)

func TestLintDefaults(t *testing.T) {
	cfg := DefaultConfig()
	res := cfg.Lint()
	codes := res.Codes()
	for _, want := range []string{"token_store_memory", "jwt_unverified", "audit_disabled"} {
		if !slices.Contains(codes, want) {
			t.Fatalf("missing %s in %v", want, codes)
		}
	}
	if err := res.AsError(LintWarn); err != nil {
		t.Fatalf("defaults should carry no warnings: %v", err)
	}
}

func TestLintFindings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
		sev    LintSeverity
	}{
		{"plain http backend", func(c *Config) { c.Backend.BaseURL = "http://api.example.com" }, "backend_plain_http", LintHigh},
		{"long verify timeout", func(c *Config) { c.Bootstrap.VerifyTimeout = time.Minute }, "verify_timeout_long", LintWarn},
		{"threshold over ttl", func(c *Config) { c.Session.DefaultTTL = 30 * time.Second }, "warning_threshold_exceeds_ttl", LintWarn},
		{"coarse tick", func(c *Config) { c.Session.TickInterval = 2 * time.Minute }, "tick_coarser_than_threshold", LintWarn},
		{"warning off", func(c *Config) { c.Session.WarningThreshold = 0 }, "warning_disabled", LintInfo},
		{"relative token file", func(c *Config) {
			c.TokenStore.Driver = tokenstore.DriverFile
			c.TokenStore.FilePath = "token.json"
		}, "token_file_relative_path", LintWarn},
		{"redis without ttl", func(c *Config) { c.TokenStore.Driver = tokenstore.DriverRedis }, "redis_token_no_ttl", LintInfo},
		{"hs256", func(c *Config) { c.JWT.SigningMethod = "hs256" }, "jwt_hs256_shared_secret", LintWarn},
		{"plaintext stream", func(c *Config) {
			c.Federated.Source = FederatedSourceWebSocket
			c.Federated.StreamURL = "ws://idp.example.com"
		}, "federated_stream_plaintext", LintWarn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			for _, w := range cfg.Lint() {
				if w.Code == tc.code {
					if w.Severity != tc.sev {
						t.Fatalf("%s severity = %s, want %s", tc.code, w.Severity, tc.sev)
					}
					return
				}
			}
			t.Fatalf("expected %s", tc.code)
		})
	}
}

func TestLintLoopbackHTTPIsQuiet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://127.0.0.1:8081"
	if slices.Contains(cfg.Lint().Codes(), "backend_plain_http") {
		t.Fatal("loopback http must not be flagged")
	}
}

func TestLintSortedBySeverity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://api.example.com"
	cfg.JWT.SigningMethod = "hs256"
	res := cfg.Lint()
	for i := 1; i < len(res); i++ {
		if res[i].Severity > res[i-1].Severity {
			t.Fatalf("not sorted: %v", res)
		}
	}
	if res.AsError(LintHigh) == nil {
		t.Fatal("expected high severity error")
	}
	if len(res.BySeverity(LintWarn)) != 2 {
		t.Fatalf("expected 2 findings >= WARN, got %v", res.BySeverity(LintWarn))
	}
}
