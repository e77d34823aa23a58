// Package config loads the devcage configuration and resolves container and
// group definitions for the orchestrator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/go-playground/validator/v10"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/viper"

	"github.com/devcage/devcage/internal/models"
)

// Common configuration errors. ErrInvalidConfig marks malformed definitions,
// distinguishable from the not-found kind returned by the resolvers.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// structValidator checks the scalar constraints declared via validate tags.
var structValidator = validator.New()

// ScriptDef is a custom lifecycle script declared in the configuration:
// inline shell source (Run), an external file (File), or a plain argument
// vector without a shell (Command). Exactly one must be set.
type ScriptDef struct {
	Run     string `mapstructure:"run"`
	File    string `mapstructure:"file"`
	Command string `mapstructure:"command"`
}

// forms counts how many source forms the definition sets.
func (d *ScriptDef) forms() int {
	n := 0
	for _, v := range []string{d.Run, d.File, d.Command} {
		if v != "" {
			n++
		}
	}
	return n
}

// ContainerDef is the raw container definition as declared in the config file.
type ContainerDef struct {
	Image  string   `mapstructure:"image"`
	Ports  []string `mapstructure:"ports"`
	Env    []string `mapstructure:"env"`
	Shell  string   `mapstructure:"shell"`
	Shared bool     `mapstructure:"shared"` // volumes shared with other containers are never purged

	Scripts struct {
		PostStart *ScriptDef `mapstructure:"post_start"`
		PreStop   *ScriptDef `mapstructure:"pre_stop"`
	} `mapstructure:"scripts"`
}

// GroupDef is the raw group definition as declared in the config file.
type GroupDef struct {
	Description string   `mapstructure:"description"`
	Members     []string `mapstructure:"members"`
}

// Config holds all configuration for the application.
type Config struct {
	Version string `mapstructure:"version"`

	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		Mode            string        `mapstructure:"mode"`
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	Docker struct {
		Host           string        `mapstructure:"host"`
		APIVersion     string        `mapstructure:"api_version"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		StopTimeout    time.Duration `mapstructure:"stop_timeout"`
		PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"docker"`

	Operations struct {
		MaxConcurrent int           `mapstructure:"max_concurrent" validate:"min=1"`
		Retention     time.Duration `mapstructure:"retention"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
		ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
		CancelGrace   time.Duration `mapstructure:"cancel_grace"`
	} `mapstructure:"operations"`

	Scripts struct {
		InitTimeout    time.Duration `mapstructure:"init_timeout"`
		HaltTimeout    time.Duration `mapstructure:"halt_timeout"`
		MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
		RetryDelay     time.Duration `mapstructure:"retry_delay"`
		MaxOutputLines int           `mapstructure:"max_output_lines" validate:"min=1"`
		HooksDir       string        `mapstructure:"hooks_dir"`
	} `mapstructure:"scripts"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Containers map[string]ContainerDef `mapstructure:"containers"`
	Groups     map[string]GroupDef     `mapstructure:"groups"`
}

// setDefaults registers the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8475)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.request_timeout", "30s")
	v.SetDefault("docker.stop_timeout", "30s")
	v.SetDefault("docker.ping_timeout", "5s")

	v.SetDefault("operations.max_concurrent", 8)
	v.SetDefault("operations.retention", "1h")
	v.SetDefault("operations.sweep_interval", "5m")
	v.SetDefault("operations.ready_timeout", "30s")
	v.SetDefault("operations.cancel_grace", "10s")

	v.SetDefault("scripts.init_timeout", "300s")
	v.SetDefault("scripts.halt_timeout", "300s")
	v.SetDefault("scripts.max_attempts", 3)
	v.SetDefault("scripts.retry_delay", "2s")
	v.SetDefault("scripts.max_output_lines", 100)
	v.SetDefault("scripts.hooks_dir", "hooks")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads the configuration from path (or the default search locations
// when path is empty), applies DEVCAGE_* environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEVCAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("devcage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/devcage")
		v.AddConfigPath("/etc/devcage")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No file found in the search path: run on defaults and env only.
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration, collecting every problem rather
// than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s fails %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	for name, def := range c.Containers {
		if def.Image == "" {
			problems = append(problems, fmt.Sprintf("container %q: image is required", name))
			continue
		}
		if _, err := reference.ParseNormalizedNamed(def.Image); err != nil {
			problems = append(problems, fmt.Sprintf("container %q: invalid image %q: %v", name, def.Image, err))
		}
		for _, p := range def.Ports {
			if !validPortMapping(p) {
				problems = append(problems, fmt.Sprintf("container %q: invalid port mapping %q", name, p))
			}
		}
		for _, phase := range []struct {
			name string
			def  *ScriptDef
		}{
			{"post_start", def.Scripts.PostStart},
			{"pre_stop", def.Scripts.PreStop},
		} {
			if phase.def == nil {
				continue
			}
			if phase.def.forms() != 1 {
				problems = append(problems, fmt.Sprintf("container %q: %s script must declare exactly one of run, file, command", name, phase.name))
			}
		}
	}

	for name, def := range c.Groups {
		if len(def.Members) == 0 {
			problems = append(problems, fmt.Sprintf("group %q: no members", name))
		}
		for _, member := range def.Members {
			if _, ok := c.Containers[member]; !ok {
				problems = append(problems, fmt.Sprintf("group %q: member %q is not a defined container", name, member))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// validPortMapping accepts "host:container" and "host:container/proto".
func validPortMapping(p string) bool {
	spec := p
	if idx := strings.LastIndex(spec, "/"); idx >= 0 {
		proto := spec[idx+1:]
		if proto != "tcp" && proto != "udp" && proto != "sctp" {
			return false
		}
		spec = spec[:idx]
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}

// Store resolves container and group names into fully-formed specs. It wraps
// a validated Config and is read-only after construction.
type Store struct {
	cfg *Config
}

// NewStore builds a Store over a validated configuration.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// ResolveContainer resolves a container name to its spec, including the
// ordered lifecycle scripts for each phase (default first, then custom).
// Unknown names yield a models.ErrNotFound kind; malformed script files
// yield ErrInvalidConfig.
func (s *Store) ResolveContainer(name string) (*models.ContainerSpec, error) {
	def, ok := s.cfg.Containers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown container %q", models.ErrNotFound, name)
	}

	shell := def.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	spec := &models.ContainerSpec{
		Name:    name,
		Image:   def.Image,
		Ports:   append([]string(nil), def.Ports...),
		Env:     append([]string(nil), def.Env...),
		Shell:   shell,
		Shared:  def.Shared,
		Group:   s.groupOf(name),
		Scripts: make(map[models.ScriptPhase][]models.ScriptSpec),
	}

	for _, phase := range []struct {
		phase  models.ScriptPhase
		custom *ScriptDef
	}{
		{models.PhasePostStart, def.Scripts.PostStart},
		{models.PhasePreStop, def.Scripts.PreStop},
	} {
		scripts, err := s.resolvePhase(name, shell, phase.phase, phase.custom)
		if err != nil {
			return nil, err
		}
		if len(scripts) > 0 {
			spec.Scripts[phase.phase] = scripts
		}
	}

	return spec, nil
}

// resolvePhase builds the ordered script list for one phase: the
// convention-located default script (when the hooks file exists) followed by
// the config-declared custom script.
func (s *Store) resolvePhase(container, shell string, phase models.ScriptPhase, custom *ScriptDef) ([]models.ScriptSpec, error) {
	var scripts []models.ScriptSpec

	hookPath := filepath.Join(s.cfg.Scripts.HooksDir, container, string(phase)+".sh")
	if data, err := os.ReadFile(hookPath); err == nil {
		scripts = append(scripts, models.ScriptSpec{
			Phase:   phase,
			Origin:  models.OriginDefault,
			Command: string(data),
			Shell:   shell,
		})
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: hook %s: %v", ErrInvalidConfig, hookPath, err)
	}

	if custom != nil {
		spec := models.ScriptSpec{
			Phase:  phase,
			Origin: models.OriginCustom,
			Shell:  shell,
		}
		switch {
		case custom.File != "":
			data, err := os.ReadFile(custom.File)
			if err != nil {
				return nil, fmt.Errorf("%w: script file %s: %v", ErrInvalidConfig, custom.File, err)
			}
			spec.Command = string(data)
		case custom.Command != "":
			args, err := shellquote.Split(custom.Command)
			if err != nil {
				return nil, fmt.Errorf("%w: container %q %s command: %v", ErrInvalidConfig, container, phase, err)
			}
			spec.Args = args
		default:
			spec.Command = custom.Run
		}
		scripts = append(scripts, spec)
	}

	return scripts, nil
}

// ResolveGroup resolves a group name to its ordered member list. Unknown
// names yield a models.ErrNotFound kind.
func (s *Store) ResolveGroup(name string) (*models.GroupSpec, error) {
	def, ok := s.cfg.Groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group %q", models.ErrNotFound, name)
	}
	return &models.GroupSpec{
		Name:        name,
		Description: def.Description,
		Members:     append([]string(nil), def.Members...),
	}, nil
}

// ContainerNames returns every defined container name.
func (s *Store) ContainerNames() []string {
	names := make([]string, 0, len(s.cfg.Containers))
	for name := range s.cfg.Containers {
		names = append(names, name)
	}
	return names
}

// GroupNames returns every defined group name.
func (s *Store) GroupNames() []string {
	names := make([]string, 0, len(s.cfg.Groups))
	for name := range s.cfg.Groups {
		names = append(names, name)
	}
	return names
}

// groupOf returns the first group declaring the container, or "".
func (s *Store) groupOf(container string) string {
	for name, def := range s.cfg.Groups {
		for _, member := range def.Members {
			if member == container {
				return name
			}
		}
	}
	return ""
}
