package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// envPrefix namespaces environment overrides, e.g. MANDEX_CRYSTAL_WAVELENGTH.
const envPrefix = "MANDEX"

// ErrConfigFile is wrapped when the config file cannot be read or parsed.
var ErrConfigFile = errors.New("config: cannot read config file")

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the YAML file at path, if path is not empty, then applies
// MANDEX_* overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrConfigFile, path, err)
		}
	}
	return unmarshalAndValidate(v)
}

func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch calls onChange with the reloaded configuration whenever the file at
// path is written. Changes that fail validation are logged and skipped.
func Watch(path string, logger *zap.Logger, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrConfigFile, path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := unmarshalAndValidate(v)
		if err != nil {
			logger.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
