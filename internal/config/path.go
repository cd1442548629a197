package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDir   = "blockdelete"
	fileName = "config.jsonc"
)

// ResolvePath applies CLI/XDG/home fallback rules for the config file location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, fileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDir, fileName), nil
}

// resolveRelative anchors file-valued settings to the config file's directory.
func resolveRelative(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		if strings.HasPrefix(p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, p[2:])
			}
		}
		return filepath.Join(dir, p)
	}
	cfg.Blocks.File = anchor(cfg.Blocks.File)
	cfg.Speech.ModelPath = anchor(cfg.Speech.ModelPath)
}
