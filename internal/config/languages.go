package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LanguagesFile describes extra languages on top of the built-in ones.
//
//	[[compiled]]
//	language  = "rust"
//	extension = ".rs"
//	compiler  = "rustc"
//	flags     = ["-O"]
//
//	[[interpreted]]
//	language   = "ruby"
//	extension  = ".rb"
//	candidates = ["ruby"]
type LanguagesFile struct {
	Compiled    []CompiledLanguage    `toml:"compiled"`
	Interpreted []InterpretedLanguage `toml:"interpreted"`
}

type CompiledLanguage struct {
	Language  string   `toml:"language"`
	Extension string   `toml:"extension"`
	Compiler  string   `toml:"compiler"`
	Flags     []string `toml:"flags"`
}

type InterpretedLanguage struct {
	Language   string   `toml:"language"`
	Extension  string   `toml:"extension"`
	Candidates []string `toml:"candidates"`
}

// LoadLanguages reads and validates a languages file.
func LoadLanguages(path string) (*LanguagesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading languages file: %w", err)
	}
	return ParseLanguages(data)
}

// ParseLanguages decodes a languages file. Unknown keys are rejected so a
// typo does not silently register a broken language.
func ParseLanguages(data []byte) (*LanguagesFile, error) {
	var lf LanguagesFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("config: parsing languages file: %w", err)
	}

	for i, c := range lf.Compiled {
		if c.Language == "" || c.Compiler == "" || !strings.HasPrefix(c.Extension, ".") {
			return nil, fmt.Errorf("config: compiled[%d]: language, compiler and a dotted extension are required", i)
		}
	}
	for i, c := range lf.Interpreted {
		if c.Language == "" || len(c.Candidates) == 0 || !strings.HasPrefix(c.Extension, ".") {
			return nil, fmt.Errorf("config: interpreted[%d]: language, candidates and a dotted extension are required", i)
		}
	}
	return &lf, nil
}
