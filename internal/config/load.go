package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path, applies environment overrides from the
// process environment and fills defaults. The result is not validated; call
// Validate after applying flag overrides.
func Load(path, root string) (*Config, error) {
	return LoadWithEnv(path, root, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path, root string, lookup LookupFunc) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".cue":
		err = decodeCUE(data, path, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .cue)", ext)
	}
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.Path = absPath
	cfg.Root = root

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Discover returns the first default config file present in root, or "" if
// there is none.
func Discover(root string) string {
	for _, name := range DefaultFileNames {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// decodeYAML parses with strict field validation so that typos such as
// "skips:" are rejected instead of silently ignored.
func decodeYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		// An empty document is a valid, all-defaults config.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// barePackageLabel finds "package:" written as a field; CUE parses it as a
// package clause.
var barePackageLabel = regexp.MustCompile(`(?m)^\s*package\s*:`)

func decodeCUE(data []byte, path string, cfg *Config) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		if barePackageLabel.Match(data) {
			return fmt.Errorf("failed to compile CUE (package is a keyword, write the label as \"package\"): %w", err)
		}
		return fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("CUE config is not concrete: %w", err)
	}
	if err := value.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode CUE: %w", err)
	}
	return nil
}
