package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// PresetDir returns the directory holding named presets, ~/.scout/presets.
// Falls back to ./.scout/presets when the home directory is unknown.
func PresetDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".scout", "presets")
}

// PresetPath returns the file path for a named preset.
func PresetPath(name string) string {
	return filepath.Join(PresetDir(), name+".yaml")
}

// LoadPreset loads a named preset. A preset that does not exist yet is
// created with defaults and returned, matching first-run behavior: the user
// edits the generated file rather than authoring one from scratch.
func LoadPreset(name string) (*Config, bool, error) {
	if name == "" {
		name = "default"
	}
	path := PresetPath(name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Name = name
		if werr := cfg.Save(path); werr != nil {
			return nil, false, fmt.Errorf("create preset %q: %w", name, werr)
		}
		cfg.applyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	cfg.Name = name
	return cfg, false, nil
}
