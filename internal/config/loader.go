package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// MonitorsFile is the name of the monitor definitions file in the config dir
const MonitorsFile = "monitors.yaml"

// MonitorsConfig represents the monitors.yaml structure
type MonitorsConfig struct {
	Monitors []*Monitor `yaml:"monitors"`
}

// Loader reads and validates monitor definitions
type Loader struct {
	configDir string
	logger    *zap.Logger
	monitors  *MonitorsConfig
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger.Named("config"),
	}
}

// LoadMonitors loads monitors.yaml, applies defaults and validates every
// monitor. Any invalid monitor rejects the whole file.
func (l *Loader) LoadMonitors() error {
	path := filepath.Join(l.configDir, MonitorsFile)
	l.logger.Debug("Loading monitors config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read monitors config: %w", err)
	}

	cfg, err := ParseMonitors(data)
	if err != nil {
		return err
	}

	l.monitors = cfg
	l.logger.Info("Monitors config loaded successfully",
		zap.Int("monitors", len(cfg.Monitors)))
	return nil
}

// ParseMonitors parses monitors YAML, applying defaults and validating
func ParseMonitors(data []byte) (*MonitorsConfig, error) {
	var cfg MonitorsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse monitors config: %w", err)
	}

	if len(cfg.Monitors) == 0 {
		return nil, fmt.Errorf("monitors config defines no monitors")
	}

	seen := make(map[string]bool, len(cfg.Monitors))
	for i, m := range cfg.Monitors {
		if m == nil {
			return nil, fmt.Errorf("monitor %d is empty", i)
		}
		if m.Name == "" {
			return nil, fmt.Errorf("monitor %d: name is required", i)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("duplicate monitor name %q", m.Name)
		}
		seen[m.Name] = true

		m.ApplyDefaults()
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// GetMonitors returns the loaded monitors, nil before LoadMonitors succeeded
func (l *Loader) GetMonitors() []*Monitor {
	if l.monitors == nil {
		return nil
	}
	return l.monitors.Monitors
}
