package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk layout. Zero values mean "keep the default".
type fileConfig struct {
	Environment      string                 `yaml:"environment" toml:"environment"`
	Port             int                    `yaml:"port" toml:"port"`
	LivenessPath     string                 `yaml:"liveness_path" toml:"liveness_path"`
	AuthPath         string                 `yaml:"auth_path" toml:"auth_path"`
	ProbeConcurrency int                    `yaml:"probe_concurrency" toml:"probe_concurrency"`
	BridgeInterface  string                 `yaml:"bridge_interface" toml:"bridge_interface"`
	InternalHostname string                 `yaml:"internal_hostname" toml:"internal_hostname"`
	ProbeImage       string                 `yaml:"probe_image" toml:"probe_image"`
	AddHostGateway   *bool                  `yaml:"add_host_gateway" toml:"add_host_gateway"`
	Firewall         fileFirewall           `yaml:"firewall" toml:"firewall"`
	Timeouts         fileTimeouts           `yaml:"timeouts" toml:"timeouts"`
	Environments     map[string]fileProfile `yaml:"environments" toml:"environments"`
}

type fileFirewall struct {
	Backend       string `yaml:"backend" toml:"backend"`
	Comment       string `yaml:"comment" toml:"comment"`
	AutoProvision *bool  `yaml:"auto_provision" toml:"auto_provision"`
	Verify        *bool  `yaml:"verify" toml:"verify"`
}

type fileTimeouts struct {
	LoopbackMS         int `yaml:"loopback_ms" toml:"loopback_ms"`
	LANIPMS            int `yaml:"lan_ip_ms" toml:"lan_ip_ms"`
	BridgeGatewayMS    int `yaml:"bridge_gateway_ms" toml:"bridge_gateway_ms"`
	InternalHostnameMS int `yaml:"internal_hostname_ms" toml:"internal_hostname_ms"`
}

// fileProfile holds per-environment deadlines layered over the base timeouts.
type fileProfile struct {
	Timeouts      fileTimeouts `yaml:"timeouts" toml:"timeouts"`
	RetryAttempts int          `yaml:"retry_attempts" toml:"retry_attempts"`
}

// Load reads a YAML or TOML file (by extension) over the defaults, applies
// the selected environment profile, then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	fc, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	fc.apply(&cfg)

	env := fc.Environment
	if v := strings.TrimSpace(os.Getenv("REACHCHECK_ENV")); v != "" {
		env = v
	}
	if env != "" {
		p, ok := fc.Environments[env]
		if !ok {
			return Config{}, fmt.Errorf("config profile %q not found in %s", env, path)
		}
		p.Timeouts.apply(&cfg.Timeouts)
		if p.RetryAttempts > 0 {
			cfg.RetryAttempts = p.RetryAttempts
		}
		cfg.Environment = env
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return fc, fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	if err != nil {
		return fc, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Port > 0 {
		cfg.Port = fc.Port
	}
	if fc.LivenessPath != "" {
		cfg.LivenessPath = fc.LivenessPath
	}
	if fc.AuthPath != "" {
		cfg.AuthPath = fc.AuthPath
	}
	if fc.ProbeConcurrency > 0 {
		cfg.ProbeConcurrency = fc.ProbeConcurrency
	}
	if fc.BridgeInterface != "" {
		cfg.BridgeInterface = fc.BridgeInterface
	}
	if fc.InternalHostname != "" {
		cfg.InternalHostname = fc.InternalHostname
	}
	if fc.ProbeImage != "" {
		cfg.ProbeImage = fc.ProbeImage
	}
	if fc.AddHostGateway != nil {
		cfg.AddHostGateway = *fc.AddHostGateway
	}
	if fc.Firewall.Backend != "" {
		cfg.FirewallBackend = fc.Firewall.Backend
	}
	if fc.Firewall.Comment != "" {
		cfg.FirewallComment = fc.Firewall.Comment
	}
	if fc.Firewall.AutoProvision != nil {
		cfg.AutoProvision = *fc.Firewall.AutoProvision
	}
	if fc.Firewall.Verify != nil {
		cfg.VerifyProvision = *fc.Firewall.Verify
	}
	fc.Timeouts.apply(&cfg.Timeouts)
}

func (ft fileTimeouts) apply(t *Timeouts) {
	set := func(dst *time.Duration, ms int) {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	set(&t.Loopback, ft.LoopbackMS)
	set(&t.LANIP, ft.LANIPMS)
	set(&t.BridgeGateway, ft.BridgeGatewayMS)
	set(&t.InternalHostname, ft.InternalHostnameMS)
}
