package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/reachcheck/internal/domain"
)

func TestFromEnv_ParsesAndDefaults(t *testing.T) {
	t.Setenv("REACHCHECK_PORT", "9090")
	t.Setenv("REACHCHECK_API_KEY", "sk-internal")
	t.Setenv("LOG_DIR", "./_testlogs")
	t.Setenv("PUBLIC_API_KEYS", "pub_a, pub_b")
	t.Setenv("ADMIN_API_KEYS", "adm_x")
	t.Setenv("LOOPBACK_TIMEOUT_MS", "1234")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("RETRY_BACKOFF_MS", "250")
	t.Setenv("MAX_CONCURRENT_PROBES", "7")
	t.Setenv("AUTO_PROVISION", "true")
	t.Setenv("FIREWALL_BACKEND", "ufw")

	cfg := FromEnv()

	if cfg.Port != 9090 || cfg.APIKey != "sk-internal" || cfg.LogDir != "./_testlogs" {
		t.Fatalf("port/key/logdir wrong: %+v", cfg)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[1] != "pub_b" {
		t.Fatalf("public keys wrong: %+v", cfg.PublicAPIKeys)
	}
	if len(cfg.AdminAPIKeys) != 1 || cfg.AdminAPIKeys[0] != "adm_x" {
		t.Fatalf("admin keys wrong: %+v", cfg.AdminAPIKeys)
	}
	if cfg.Timeouts.Loopback != 1234*time.Millisecond {
		t.Fatalf("loopback timeout wrong: %v", cfg.Timeouts.Loopback)
	}
	if cfg.Timeouts.LANIP != 3*time.Second {
		t.Fatalf("lan timeout should keep default, got %v", cfg.Timeouts.LANIP)
	}
	if cfg.RetryAttempts != 5 || cfg.RetryBackoff != 250*time.Millisecond || cfg.ProbeConcurrency != 7 {
		t.Fatalf("retry/concurrency wrong: %+v", cfg)
	}
	if !cfg.AutoProvision || cfg.FirewallBackend != "ufw" {
		t.Fatalf("firewall settings wrong: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// malformed values fall back to defaults
	os.Unsetenv("REACHCHECK_PORT")
	t.Setenv("MAX_CONCURRENT_PROBES", "lots")
	cfg = FromEnv()
	if cfg.Port != 8000 || cfg.ProbeConcurrency != 4 {
		t.Fatalf("expected defaults, got port=%d conc=%d", cfg.Port, cfg.ProbeConcurrency)
	}
}

func TestFromEnv_WatchAndAlerting(t *testing.T) {
	t.Setenv("WATCH_INTERVAL_S", "30")
	t.Setenv("ALERT_COOLDOWN_S", "0")
	t.Setenv("ALERT_ON_RECOVERY", "false")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://ops.example")

	cfg := FromEnv()
	if cfg.WatchInterval != 30*time.Second {
		t.Fatalf("watch interval wrong: %v", cfg.WatchInterval)
	}
	if cfg.AlertCooldown != 0 || cfg.AlertOnRecovery {
		t.Fatalf("alert settings wrong: cooldown=%v recovery=%v", cfg.AlertCooldown, cfg.AlertOnRecovery)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://ops.example" {
		t.Fatalf("origins wrong: %+v", cfg.AllowedOrigins)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Port = 0
	cfg.LivenessPath = "health"
	cfg.FirewallBackend = "pf"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"port", "liveness path", "firewall backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %q", err, want)
		}
	}
}

func TestTimeouts_For(t *testing.T) {
	cfg := Defaults()
	if cfg.Timeouts.For(domain.ModeDockerBridgeGateway) != cfg.Timeouts.BridgeGateway {
		t.Fatal("bridge timeout mismatch")
	}
	if cfg.MaxTimeout() != 10*time.Second {
		t.Fatalf("max timeout = %v", cfg.MaxTimeout())
	}
}

const yamlConfig = `
port: 11434
liveness_path: /healthz
environment: dev
firewall:
  backend: iptables
  auto_provision: true
timeouts:
  loopback_ms: 1500
environments:
  dev:
    timeouts:
      bridge_gateway_ms: 4000
  prod:
    retry_attempts: 3
    timeouts:
      bridge_gateway_ms: 20000
`

func TestLoad_YAMLWithProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reachcheck.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 11434 || cfg.LivenessPath != "/healthz" || cfg.FirewallBackend != "iptables" || !cfg.AutoProvision {
		t.Fatalf("base values wrong: %+v", cfg)
	}
	if cfg.Environment != "dev" || cfg.Timeouts.BridgeGateway != 4*time.Second || cfg.Timeouts.Loopback != 1500*time.Millisecond {
		t.Fatalf("dev profile wrong: %+v", cfg.Timeouts)
	}

	t.Setenv("REACHCHECK_ENV", "prod")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load prod: %v", err)
	}
	if cfg.Timeouts.BridgeGateway != 20*time.Second || cfg.RetryAttempts != 3 {
		t.Fatalf("prod profile wrong: %+v", cfg)
	}

	t.Setenv("REACHCHECK_ENV", "staging")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reachcheck.toml")
	body := `
port = 8080
internal_hostname = "gateway.internal"

[timeouts]
lan_ip_ms = 900
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.InternalHostname != "gateway.internal" || cfg.Timeouts.LANIP != 900*time.Millisecond {
		t.Fatalf("toml values wrong: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	ini := filepath.Join(dir, "cfg.ini")
	_ = os.WriteFile(ini, []byte("port=1"), 0o644)
	if _, err := Load(ini); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("port: [1,2"), 0o644)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected parse error")
	}
}
