// Package config loads and validates Overstory's static configuration,
// following the shape of the teacher's internal/config package: a single
// YAML file parsed into a typed struct, defaults applied on the zero value,
// and a Validate pass that collects every problem instead of failing fast
// on the first one.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml (spec.md §6 "Configuration keys").
type Config struct {
	Project     Project             `yaml:"project"`
	Agents      Agents              `yaml:"agents"`
	Worktrees   Worktrees           `yaml:"worktrees"`
	Merge       Merge               `yaml:"merge"`
	Watchdog    Watchdog            `yaml:"watchdog"`
	Providers   map[string]Provider `yaml:"providers,omitempty"`
	Models      map[string]string   `yaml:"models,omitempty"` // capability -> "provider/model"
	Mulch       Mulch               `yaml:"mulch,omitempty"`
	Logging     Logging             `yaml:"logging,omitempty"`
	Permissions *Permissions        `yaml:"permissions,omitempty"`
}

// Project identifies the repository Overstory is orchestrating.
type Project struct {
	Name            string `yaml:"name"`
	Root            string `yaml:"root"`
	CanonicalBranch string `yaml:"canonicalBranch"`
}

// Agents controls spawn concurrency, hierarchy depth, and pacing.
type Agents struct {
	ManifestPath      string   `yaml:"manifestPath,omitempty"`
	BaseDir           string   `yaml:"baseDir,omitempty"`
	MaxConcurrent     int      `yaml:"maxConcurrent"`
	StaggerDelayMs    int      `yaml:"staggerDelayMs"`
	MaxDepth          int      `yaml:"maxDepth"`
	MaxSessionsPerRun int      `yaml:"maxSessionsPerRun"`
	Command           string   `yaml:"command,omitempty"` // LLM CLI binary launched inside each terminal session
	Args              []string `yaml:"args,omitempty"`
}

// Worktrees controls where agent worktrees are created.
type Worktrees struct {
	BaseDir string `yaml:"baseDir,omitempty"`
}

// Merge controls which optional resolver tiers are enabled.
type Merge struct {
	AIResolveEnabled bool `yaml:"aiResolveEnabled"`
	ReimagineEnabled bool `yaml:"reimagineEnabled"`
}

// Watchdog controls the health-evaluation loop's cadence and thresholds.
type Watchdog struct {
	Tier0Enabled      bool  `yaml:"tier0Enabled"`
	Tier0IntervalMs   int   `yaml:"tier0IntervalMs"`
	Tier1Enabled      bool  `yaml:"tier1Enabled"`
	Tier2Enabled      bool  `yaml:"tier2Enabled"`
	StaleThresholdMs  int64 `yaml:"staleThresholdMs"`
	ZombieThresholdMs int64 `yaml:"zombieThresholdMs"`
	NudgeIntervalMs   int   `yaml:"nudgeIntervalMs"`
}

// Provider describes an LLM gateway Overstory can route a capability to.
type Provider struct {
	Type         string `yaml:"type"` // "native" or a gateway identifier
	BaseURL      string `yaml:"baseUrl,omitempty"`
	AuthTokenEnv string `yaml:"authTokenEnv,omitempty"`
}

// Mulch configures the knowledge-store priming integration.
type Mulch struct {
	Enabled     bool     `yaml:"enabled"`
	Domains     []string `yaml:"domains,omitempty"`
	PrimeFormat string   `yaml:"primeFormat,omitempty"`
}

// Logging controls verbosity and secret redaction for structured logs.
type Logging struct {
	Verbose       bool `yaml:"verbose"`
	RedactSecrets bool `yaml:"redactSecrets"`
}

// Permissions mirrors the Claude Code .claude/settings.json permissions
// block. When set, the spawn coordinator writes it into each new worktree.
type Permissions struct {
	Allow []string `yaml:"allow" json:"allow"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// Default values applied when the corresponding field is the zero value.
const (
	DefaultMaxConcurrent      = 5
	DefaultMaxDepth           = 2
	DefaultStaggerDelayMs     = 2000
	DefaultStaleThresholdMs   = 300_000
	DefaultZombieThresholdMs  = 600_000
	DefaultWatchdogIntervalMs = 10_000
	DefaultNudgeIntervalMs    = 5_000
	DefaultCanonicalBranch    = "main"
	DefaultAgentCommand       = "claude"
)

// Load reads and parses a config file from path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Project.CanonicalBranch == "" {
		cfg.Project.CanonicalBranch = DefaultCanonicalBranch
	}
	if cfg.Agents.MaxConcurrent == 0 {
		cfg.Agents.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Agents.MaxDepth == 0 {
		cfg.Agents.MaxDepth = DefaultMaxDepth
	}
	if cfg.Agents.StaggerDelayMs == 0 {
		cfg.Agents.StaggerDelayMs = DefaultStaggerDelayMs
	}
	if cfg.Worktrees.BaseDir == "" {
		cfg.Worktrees.BaseDir = "worktrees"
	}
	if cfg.Agents.Command == "" {
		cfg.Agents.Command = DefaultAgentCommand
	}
	if cfg.Watchdog.Tier0IntervalMs == 0 {
		cfg.Watchdog.Tier0IntervalMs = DefaultWatchdogIntervalMs
	}
	if cfg.Watchdog.StaleThresholdMs == 0 {
		cfg.Watchdog.StaleThresholdMs = DefaultStaleThresholdMs
	}
	if cfg.Watchdog.ZombieThresholdMs == 0 {
		cfg.Watchdog.ZombieThresholdMs = DefaultZombieThresholdMs
	}
	if cfg.Watchdog.NudgeIntervalMs == 0 {
		cfg.Watchdog.NudgeIntervalMs = DefaultNudgeIntervalMs
	}

	return &cfg, nil
}

// Validate checks the config for problems and returns every one found
// rather than stopping at the first, matching the teacher's pattern.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Project.Name == "" {
		errs = append(errs, fmt.Errorf("project.name is required"))
	}
	if cfg.Agents.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("agents.maxConcurrent must be >= 0"))
	}
	if cfg.Agents.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("agents.maxDepth must be >= 0"))
	}
	if cfg.Agents.StaggerDelayMs < 0 {
		errs = append(errs, fmt.Errorf("agents.staggerDelayMs must be >= 0"))
	}

	for name, p := range cfg.Providers {
		if p.Type == "" {
			errs = append(errs, fmt.Errorf("providers.%s: type is required", name))
		}
		if p.Type != "native" && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s: baseUrl is required for non-native providers", name))
		}
	}

	for capability, ref := range cfg.Models {
		if !strings.Contains(ref, "/") {
			errs = append(errs, fmt.Errorf("models.%s: %q must be of the form provider/model", capability, ref))
			continue
		}
		provName := ref[:strings.IndexByte(ref, '/')]
		if provName != "native" {
			if _, ok := cfg.Providers[provName]; !ok {
				errs = append(errs, fmt.Errorf("models.%s: unknown provider %q", capability, provName))
			}
		}
	}

	return errs
}

// StaggerDelay returns the configured stagger delay as a time.Duration.
func (cfg *Config) StaggerDelay() time.Duration {
	return time.Duration(cfg.Agents.StaggerDelayMs) * time.Millisecond
}

// LoadEnv loads a .env file alongside the config, if present. Missing files
// are not an error — provider tokens may already be in the environment.
func LoadEnv(configPath string) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	_ = godotenv.Load(envPath) // best-effort: absent .env is normal
}

// StateDirName is the hidden directory Overstory owns inside the project
// root (spec.md §6).
const StateDirName = ".overstory"

// ResolveProjectRoot finds the project root starting from dir, which may be
// inside an agent worktree rather than the canonical checkout. It walks up
// looking for a .overstory state directory; agent worktrees never contain
// one, so this always resolves back to the main checkout. If no
// .overstory directory is found (first-run, before `overstory init`),
// falls back to the first entry in `git worktree list`, which is always
// the main checkout regardless of which worktree the command runs from.
func ResolveProjectRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	path := abs
	for {
		if info, statErr := os.Stat(filepath.Join(path, StateDirName)); statErr == nil && info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = abs
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolving project root: not inside an Overstory project and git worktree list failed: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			return strings.TrimPrefix(line, "worktree "), nil
		}
	}
	return "", fmt.Errorf("resolving project root: no worktree entries found")
}

// StateDir returns the state directory path for a given project root.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName)
}

// StatePath joins the state directory with the given relative path segments.
func StatePath(projectRoot string, elem ...string) string {
	parts := append([]string{StateDir(projectRoot)}, elem...)
	return filepath.Join(parts...)
}
