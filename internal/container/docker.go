package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrRuntimeUnavailable means no throwaway container could be started at all.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// Exit codes docker itself uses when the container never ran.
const (
	exitDaemonError   = 125
	exitCannotInvoke  = 126
	exitCommandAbsent = 127
)

var (
	// Image names: lowercase letters, numbers, dots, hyphens, slashes, colons
	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._:/@-]*[a-z0-9]$|^[a-z0-9]$`)

	// Host aliases for --add-host: a hostname, then an IP or the host-gateway keyword
	hostEntryPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]*:([0-9a-fA-F.:]+|host-gateway)$`)

	// Network names
	networkPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// ValidateContainerName validates image names before they reach the CLI
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("name too long (max 255 chars)")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name contains invalid characters: %s", name)
	}
	return nil
}

// ValidatePort validates port numbers
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateHostEntry validates a name:address pair for --add-host
func ValidateHostEntry(entry string) error {
	if !hostEntryPattern.MatchString(entry) {
		return fmt.Errorf("invalid host entry: %s", entry)
	}
	return nil
}

// EphemeralSpec describes a short-lived client container that is removed on exit.
type EphemeralSpec struct {
	Image    string
	Network  string
	AddHosts []string
	Args     []string
}

func (s EphemeralSpec) validate() error {
	if err := ValidateContainerName(s.Image); err != nil {
		return fmt.Errorf("invalid image name: %w", err)
	}
	if s.Network != "" && !networkPattern.MatchString(s.Network) {
		return fmt.Errorf("invalid network name: %s", s.Network)
	}
	for _, h := range s.AddHosts {
		if err := ValidateHostEntry(h); err != nil {
			return err
		}
	}
	return nil
}

// RunResult is what the client inside the container reported. ExitCode is
// the client's own exit status, not the runtime's.
type RunResult struct {
	ExitCode int
	Output   string
}

// DockerCLI runs throwaway clients through the docker (or podman) CLI.
// Arguments are passed to exec directly, never through a shell.
type DockerCLI struct {
	Binary string
	Logger *zap.Logger
}

func NewDockerCLI(binary string, logger *zap.Logger) *DockerCLI {
	if binary == "" {
		binary = "docker"
	}
	return &DockerCLI{Binary: binary, Logger: logger}
}

func buildRunArgs(spec EphemeralSpec) []string {
	args := []string{"run", "--rm"}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	for _, h := range spec.AddHosts {
		args = append(args, "--add-host", h)
	}
	args = append(args, spec.Image)
	return append(args, spec.Args...)
}

// Available reports whether the runtime binary can be found.
func (d *DockerCLI) Available() error {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrRuntimeUnavailable, d.Binary, err)
	}
	return nil
}

// RunEphemeral runs spec to completion. A non-zero exit of the client is a
// RunResult, not an error; errors are reserved for the runtime failing to
// start the container.
func (d *DockerCLI) RunEphemeral(ctx context.Context, spec EphemeralSpec) (RunResult, error) {
	if err := spec.validate(); err != nil {
		return RunResult{}, err
	}
	if err := d.Available(); err != nil {
		return RunResult{}, err
	}

	args := buildRunArgs(spec)
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	output, err := cmd.CombinedOutput()
	out := string(output)
	if err == nil {
		return RunResult{ExitCode: 0, Output: out}, nil
	}
	if ctx.Err() != nil {
		return RunResult{}, fmt.Errorf("%s run interrupted: %w", d.Binary, ctx.Err())
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return RunResult{}, fmt.Errorf("%w: %s run failed: %v", ErrRuntimeUnavailable, d.Binary, err)
	}
	code := exitErr.ExitCode()
	switch code {
	case exitDaemonError, exitCannotInvoke, exitCommandAbsent:
		d.Logger.Debug("container_run_failed",
			zap.String("image", spec.Image),
			zap.Int("exit_code", code),
			zap.String("output", strings.TrimSpace(out)),
		)
		return RunResult{}, fmt.Errorf("%w: %s run exited %d, output: %s",
			ErrRuntimeUnavailable, d.Binary, code, strings.TrimSpace(out))
	}
	return RunResult{ExitCode: code, Output: out}, nil
}
