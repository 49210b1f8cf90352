package adapter

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sakif/code-sandbox/internal/model"
)

// Registry maps languages to adapters. It is immutable once built, so lookups
// need no locking.
type Registry struct {
	adapters map[model.Language]Adapter
}

// NewRegistry builds a registry, rejecting nil, unnamed and duplicate adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	reg := &Registry{adapters: make(map[model.Language]Adapter, len(adapters))}

	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("adapter cannot be nil")
		}
		lang := a.Language()
		if lang == "" {
			return nil, fmt.Errorf("adapter missing language identifier")
		}
		if _, exists := reg.adapters[lang]; exists {
			return nil, fmt.Errorf("duplicate adapter for language %q", lang)
		}
		reg.adapters[lang] = a
	}

	if len(reg.adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter must be registered")
	}
	return reg, nil
}

// Get returns the adapter for lang.
func (r *Registry) Get(lang model.Language) (Adapter, bool) {
	a, ok := r.adapters[lang]
	return a, ok
}

// Languages returns the registered languages in sorted order.
func (r *Registry) Languages() []model.Language {
	langs := make([]model.Language, 0, len(r.adapters))
	for lang := range r.adapters {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// Toolchain holds the host tool names and time budgets for the built-in adapters.
type Toolchain struct {
	CPPCompiler      string
	CCompiler        string
	PythonCandidates []string
	CompileTimeout   time.Duration
	RunTimeout       time.Duration
	ProbeTimeout     time.Duration
}

// DefaultToolchain returns the stock tool names with a 5s run budget.
func DefaultToolchain() Toolchain {
	return Toolchain{
		CPPCompiler:      "g++",
		CCompiler:        "gcc",
		PythonCandidates: []string{"python3", "python"},
		CompileTimeout:   10 * time.Second,
		RunTimeout:       5 * time.Second,
		ProbeTimeout:     2 * time.Second,
	}
}

// Builtin returns the adapters for C++, C and Python. A language whose tool
// name is empty is left out.
func Builtin(tc Toolchain, runner Runner, logger *slog.Logger) []Adapter {
	var adapters []Adapter

	if tc.CPPCompiler != "" {
		adapters = append(adapters, NewCompiled(CompiledConfig{
			Language:       model.LanguageCPP,
			Extension:      ".cpp",
			Compiler:       tc.CPPCompiler,
			CompileTimeout: tc.CompileTimeout,
			RunTimeout:     tc.RunTimeout,
		}, runner, logger))
	}

	if tc.CCompiler != "" {
		adapters = append(adapters, NewCompiled(CompiledConfig{
			Language:       model.LanguageC,
			Extension:      ".c",
			Compiler:       tc.CCompiler,
			CompileTimeout: tc.CompileTimeout,
			RunTimeout:     tc.RunTimeout,
		}, runner, logger))
	}

	if len(tc.PythonCandidates) > 0 {
		adapters = append(adapters, NewInterpreted(InterpretedConfig{
			Language:     model.LanguagePython,
			Extension:    ".py",
			Candidates:   tc.PythonCandidates,
			ProbeTimeout: tc.ProbeTimeout,
			RunTimeout:   tc.RunTimeout,
		}, runner, logger))
	}

	return adapters
}
