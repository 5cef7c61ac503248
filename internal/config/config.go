package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// Timeouts are the per-mode probe deadlines. Container modes need more
// headroom because they include starting a throwaway client.
type Timeouts struct {
	Loopback         time.Duration
	LANIP            time.Duration
	BridgeGateway    time.Duration
	InternalHostname time.Duration
}

func (t Timeouts) For(mode domain.AddressingMode) time.Duration {
	switch mode {
	case domain.ModeLoopback:
		return t.Loopback
	case domain.ModeLANIP:
		return t.LANIP
	case domain.ModeDockerBridgeGateway:
		return t.BridgeGateway
	case domain.ModeDockerInternalHostname:
		return t.InternalHostname
	}
	return t.Loopback
}

type Config struct {
	Environment string // profile name selected from a config file, e.g. "dev"

	Port         int    // target service port
	LivenessPath string // unauthenticated liveness endpoint
	AuthPath     string // endpoint used for the authenticated variant
	APIKey       string // when set, the authenticated variant runs

	Timeouts         Timeouts
	ProbeConcurrency int
	RetryAttempts    int           // attempts per probe, bounded by the probe timeout
	RetryBackoff     time.Duration // backoff between attempts

	BridgeInterface  string // e.g. docker0
	InternalHostname string // e.g. host.docker.internal
	ContainerRuntime string // docker CLI binary
	ProbeImage       string // image used for throwaway clients
	AddHostGateway   bool   // map the internal hostname to host-gateway in probe containers

	FirewallBackend string // auto | iptables | ufw | none
	FirewallComment string
	AutoProvision   bool
	VerifyProvision bool

	LogDir   string
	LogLevel string

	Addr           string // API bind address
	PublicAPIKeys  []string
	AdminAPIKeys   []string
	AllowedOrigins []string
	RateLimitRPM   int
	RateLimitBurst int

	WatchInterval   time.Duration // 0 disables periodic runs in the API server
	WebhookURL      string
	AlertCooldown   time.Duration
	AlertOnRecovery bool
}

func Defaults() Config {
	return Config{
		Port:         8000,
		LivenessPath: "/health",
		AuthPath:     "/v1/models",
		Timeouts: Timeouts{
			Loopback:         3 * time.Second,
			LANIP:            3 * time.Second,
			BridgeGateway:    10 * time.Second,
			InternalHostname: 10 * time.Second,
		},
		ProbeConcurrency: 4,
		RetryAttempts:    1,
		RetryBackoff:     300 * time.Millisecond,
		BridgeInterface:  "docker0",
		InternalHostname: "host.docker.internal",
		ContainerRuntime: "docker",
		ProbeImage:       "curlimages/curl:8.10.1",
		AddHostGateway:   true,
		FirewallBackend:  "auto",
		FirewallComment:  "reachcheck: docker bridge to host service",
		VerifyProvision:  true,
		LogDir:           "logs",
		LogLevel:         "info",
		Addr:             "127.0.0.1:8089",
		RateLimitRPM:     60,
		RateLimitBurst:   10,
		AlertCooldown:    15 * time.Minute,
		AlertOnRecovery:  true,
	}
}

// FromEnv returns defaults overridden by environment variables.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Environment, "REACHCHECK_ENV")
	setInt(&cfg.Port, "REACHCHECK_PORT")
	setString(&cfg.LivenessPath, "LIVENESS_PATH")
	setString(&cfg.AuthPath, "AUTH_PATH")
	setString(&cfg.APIKey, "REACHCHECK_API_KEY")

	setMillis(&cfg.Timeouts.Loopback, "LOOPBACK_TIMEOUT_MS")
	setMillis(&cfg.Timeouts.LANIP, "LAN_TIMEOUT_MS")
	setMillis(&cfg.Timeouts.BridgeGateway, "BRIDGE_TIMEOUT_MS")
	setMillis(&cfg.Timeouts.InternalHostname, "INTERNAL_HOST_TIMEOUT_MS")
	setInt(&cfg.ProbeConcurrency, "MAX_CONCURRENT_PROBES")
	setInt(&cfg.RetryAttempts, "RETRY_ATTEMPTS")
	if v := os.Getenv("RETRY_BACKOFF_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.RetryBackoff = time.Duration(ms) * time.Millisecond
		}
	}

	setString(&cfg.BridgeInterface, "BRIDGE_INTERFACE")
	setString(&cfg.InternalHostname, "INTERNAL_HOSTNAME")
	setString(&cfg.ContainerRuntime, "CONTAINER_RUNTIME")
	setString(&cfg.ProbeImage, "PROBE_IMAGE")
	setBool(&cfg.AddHostGateway, "ADD_HOST_GATEWAY")

	setString(&cfg.FirewallBackend, "FIREWALL_BACKEND")
	setString(&cfg.FirewallComment, "FIREWALL_COMMENT")
	setBool(&cfg.AutoProvision, "AUTO_PROVISION")
	setBool(&cfg.VerifyProvision, "VERIFY_PROVISION")

	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.Addr, "API_ADDR")
	if v := os.Getenv("PUBLIC_API_KEYS"); v != "" {
		cfg.PublicAPIKeys = splitList(v)
	}
	if v := os.Getenv("ADMIN_API_KEYS"); v != "" {
		cfg.AdminAPIKeys = splitList(v)
	}
	setInt(&cfg.RateLimitRPM, "RATE_LIMIT_RPM")
	setInt(&cfg.RateLimitBurst, "RATE_LIMIT_BURST")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	setSeconds(&cfg.WatchInterval, "WATCH_INTERVAL_S")
	setString(&cfg.WebhookURL, "WEBHOOK_URL")
	setSeconds(&cfg.AlertCooldown, "ALERT_COOLDOWN_S")
	setBool(&cfg.AlertOnRecovery, "ALERT_ON_RECOVERY")
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if !strings.HasPrefix(c.LivenessPath, "/") {
		err = multierr.Append(err, fmt.Errorf("liveness path must start with '/': %q", c.LivenessPath))
	}
	for _, m := range domain.AllModes() {
		if c.Timeouts.For(m) <= 0 {
			err = multierr.Append(err, fmt.Errorf("timeout for %s must be positive", m))
		}
	}
	if c.ProbeConcurrency < 1 {
		err = multierr.Append(err, errors.New("probe concurrency must be at least 1"))
	}
	switch c.FirewallBackend {
	case "auto", "iptables", "ufw", "none":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown firewall backend %q", c.FirewallBackend))
	}
	if strings.TrimSpace(c.InternalHostname) == "" {
		err = multierr.Append(err, errors.New("internal hostname is required"))
	}
	return err
}

// MaxTimeout is the largest per-mode deadline; a full run should finish
// close to it.
func (c Config) MaxTimeout() time.Duration {
	var longest time.Duration
	for _, m := range domain.AllModes() {
		if d := c.Timeouts.For(m); d > longest {
			longest = d
		}
	}
	return longest
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}

// setSeconds accepts 0 so a feature can be switched off.
func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
