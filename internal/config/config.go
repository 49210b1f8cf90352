// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first if present; variables
// already set in the real environment win over it. Every setting has a
// default, so an empty environment is a valid configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the server and the CLI.
type Config struct {
	Port int

	// ScratchDir is the parent of all execution workspaces.
	ScratchDir string
	// DBPath is the execution history database. Empty disables history.
	DBPath string
	// LanguagesFile optionally registers extra languages (TOML).
	LanguagesFile string

	RunTimeout     time.Duration
	CompileTimeout time.Duration
	ProbeTimeout   time.Duration

	CPPCompiler      string
	CCompiler        string
	PythonCandidates []string

	MaxOutputBytes int
	MaxConcurrent  int

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  slog.Level
	LogFormat string // text, json or pretty

	// SweepAge is the age past which leftover workspaces are removed at startup.
	SweepAge time.Duration
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:             8080,
		ScratchDir:       filepath.Join(os.TempDir(), "code-sandbox"),
		DBPath:           filepath.Join("data", "sandbox.db"),
		RunTimeout:       5 * time.Second,
		CompileTimeout:   10 * time.Second,
		ProbeTimeout:     2 * time.Second,
		CPPCompiler:      "g++",
		CCompiler:        "gcc",
		PythonCandidates: []string{"python3", "python"},
		MaxOutputBytes:   1 << 20,
		RateLimitBurst:   5,
		LogLevel:         slog.LevelInfo,
		LogFormat:        "text",
		SweepAge:         time.Hour,
	}
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
// Invalid values are errors; unset ones keep their default.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	p := parser{lookup: lookup}

	p.int("PORT", &cfg.Port)
	p.string("SCRATCH_DIR", &cfg.ScratchDir)
	p.stringAllowEmpty("DB_PATH", &cfg.DBPath)
	p.string("LANGUAGES_FILE", &cfg.LanguagesFile)
	p.duration("RUN_TIMEOUT", &cfg.RunTimeout)
	p.duration("COMPILE_TIMEOUT", &cfg.CompileTimeout)
	p.duration("PROBE_TIMEOUT", &cfg.ProbeTimeout)
	p.stringAllowEmpty("CPP_COMPILER", &cfg.CPPCompiler)
	p.stringAllowEmpty("C_COMPILER", &cfg.CCompiler)
	p.list("PYTHON_CANDIDATES", &cfg.PythonCandidates)
	p.int("MAX_OUTPUT_BYTES", &cfg.MaxOutputBytes)
	p.int("MAX_CONCURRENT", &cfg.MaxConcurrent)
	p.float("RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	p.int("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	p.level("LOG_LEVEL", &cfg.LogLevel)
	p.string("LOG_FORMAT", &cfg.LogFormat)
	p.duration("SWEEP_AGE", &cfg.SweepAge)

	// A value that failed to parse keeps its default, so range checks on
	// the rest still run and every problem is reported at once.
	if errs := append(p.errs, cfg.problems()...); len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks ranges that the parser cannot.
func (c Config) Validate() error {
	if errs := c.problems(); len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) problems() []error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"RUN_TIMEOUT", c.RunTimeout},
		{"COMPILE_TIMEOUT", c.CompileTimeout},
		{"PROBE_TIMEOUT", c.ProbeTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", t.name, t.d))
		}
	}
	if c.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("MAX_OUTPUT_BYTES must not be negative"))
	}
	if c.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT must not be negative"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative"))
	}
	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text, json or pretty, got %q", c.LogFormat))
	}
	return errs
}

// parser collects every error instead of returning them, so FromLookup reads
// as a flat list of settings.
type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
}

func (p *parser) string(key string, dst *string) {
	if v, ok := p.get(key); ok && v != "" {
		*dst = v
	}
}

// stringAllowEmpty lets an explicitly empty value override the default,
// which is how DB_PATH= disables history and C_COMPILER= drops C.
func (p *parser) stringAllowEmpty(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) list(key string, dst *[]string) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = f
}

// duration accepts Go durations ("5s", "1500ms") or a bare number of milliseconds.
func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok || v == "" {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = d
}

func (p *parser) level(key string, dst *slog.Level) {
	v, ok := p.get(key)
	if !ok || v == "" {
		return
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = lvl
}
