package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DIALOGD_"
)

// nestedFields are field prefixes that map to a nested key when they
// arrive through the environment, e.g. LOOP_WEIGHTS_SEMANTIC.
var nestedFields = []string{"weights", "max_cycles", "loop_thresholds", "qdrant"}

// Load returns defaults overridden by environment variables.
func Load() (*Config, error) {
	return load(nil, "")
}

// LoadWithFile loads the YAML file at configPath on top of the defaults,
// then applies environment overrides. An empty path uses
// ~/.config/dialogd/config.yaml when it exists.
//
// The file must live under ~/.config/dialogd/ or /etc/dialogd/, be a
// regular file no larger than 1MB, and on Unix have 0600 or 0400
// permissions.
//
// Environment variables map as DIALOGD_<SECTION>_<FIELD>:
//
//	DIALOGD_SERVER_HTTP_PORT     -> server.http_port
//	DIALOGD_MEMORY_TIER_TIMEOUT  -> memory.tier_timeout
//	DIALOGD_LOOP_WEIGHTS_SEMANTIC -> loop.weights.semantic
func LoadWithFile(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return load(nil, "")
		}
		return nil, err
	}
	return load(content, configPath)
}

// DefaultDir returns ~/.config/dialogd.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "dialogd"), nil
}

func load(content []byte, source string) (*Config, error) {
	k := koanf.New(".")

	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", source, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DIALOGD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, n := range nestedFields {
		if rest, found := strings.CutPrefix(field, n+"_"); found {
			return section + "." + n + "." + rest
		}
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates through the open
// descriptor to avoid a stat/read race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large (max %d bytes)", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigPath checks that path resolves inside an allowed
// directory. Symlinks are followed when the target exists.
func validateConfigPath(path string) error {
	abs, err := sanitize.ValidatePath(path, "")
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	userDir, err := DefaultDir()
	if err != nil {
		return err
	}
	for _, root := range []string{userDir, "/etc/dialogd"} {
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			root = resolved
		}
		if _, err := sanitize.ValidatePath(abs, root); err == nil {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/dialogd/ or /etc/dialogd/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file")
	}
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
