// Package config handles configuration loading and validation.
package config

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/bridge"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/logger"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/seriallink"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/transport/mqtt"
)

// Default config file locations.
var configPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./mbgate.yaml",
	"./mbgate.yml",
	"~/.config/mbgate/config.yaml",
	"/etc/mbgate/config.yaml",
}

// Config is the gateway's complete configuration, constructed once at
// startup and passed into the component constructors.
type Config struct {
	// Device names this gateway; it forms the default command topic.
	Device string `yaml:"device" json:"device" validate:"required"`

	MQTT    mqtt.Config       `yaml:"mqtt" json:"mqtt"`
	Serial  seriallink.Config `yaml:"serial" json:"serial"`
	Modbus  bridge.Config     `yaml:"modbus" json:"modbus"`
	Journal JournalConfig     `yaml:"journal" json:"journal"`
	API     APIConfig         `yaml:"api" json:"api"`
	Logging logger.Config     `yaml:"logging" json:"logging"`
}

// JournalConfig enables the transaction journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// APIConfig enables the HTTP status server.
type APIConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// Load loads configuration from path, or from the first default
// location that exists, or returns DefaultConfig.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}

	for _, p := range configPaths {
		if p[0] == '~' {
			home, err := os.UserHomeDir()
			if err == nil {
				p = filepath.Join(home, p[2:])
			}
		}
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}

	cfg := DefaultConfig()
	return cfg, nil
}

// loadFile loads configuration from a specific file. Defaults are the
// baseline, so a sparse file only overrides what it names. The
// baseline deliberately carries no derived topic: it is computed after
// unmarshalling so it follows the file's device name unless the file
// overrides the topic itself.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDerived()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDerived fills values computed from other fields.
func (c *Config) applyDerived() {
	if c.MQTT.Topic == "" && c.Device != "" {
		c.MQTT.Topic = mqtt.TopicFor(c.Device)
	}
}

// Validate validates the configuration.
func Validate(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the configuration the gateway ships with,
// mirroring the original deployment constants.
func DefaultConfig() *Config {
	cfg := baseConfig()
	cfg.applyDerived()
	return cfg
}

// baseConfig returns the defaults without derived fields.
func baseConfig() *Config {
	cfg := &Config{
		Device: "gateway",
		MQTT:   mqtt.DefaultConfig(),
		Serial: seriallink.DefaultConfig(),
		Modbus: bridge.DefaultConfig(),
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./mbgate-journal.db",
		},
		API: APIConfig{
			Enabled: false,
			Port:    8080,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
	cfg.Serial.Port = "/dev/ttyUSB0"
	return cfg
}
