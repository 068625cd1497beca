package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "propforge.yaml"
	// UserConfigDir is the directory for user-level config, under $HOME.
	UserConfigDir = ".config/propforge"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader loads configuration with layered precedence: defaults, then the
// user config, then the project config found by walking up from the working
// directory.
type Loader struct {
	logger *slog.Logger

	// workDir overrides the starting directory for the project config
	// search, for tests.
	workDir string
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves the layered configuration and validates the result.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userPath := l.userConfigPath()
	if userPath != "" {
		if userConfig, err := LoadFromFile(userPath); err == nil {
			l.logger.Debug("Loaded user config", "path", userPath)
			config.Merge(userConfig)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config", "path", userPath, "error", err)
		}
	}

	projectPath := l.findProjectConfig()
	if projectPath != "" {
		projectConfig, err := LoadFromFile(projectPath)
		if err != nil {
			l.logger.Warn("Failed to load project config", "path", projectPath, "error", err)
		} else {
			l.logger.Debug("Loaded project config", "path", projectPath)
			config.Merge(projectConfig)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig writes the default user config if none exists.
func (l *Loader) EnsureUserConfig() error {
	path := l.userConfigPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	l.logger.Info("Created default user config", "path", path)
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks up from the working directory looking for
// propforge.yaml.
func (l *Loader) findProjectConfig() string {
	dir := l.workDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
