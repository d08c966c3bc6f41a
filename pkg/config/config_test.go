package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}

	if cfg.MQTT.Topic != "+/gateway/mbnet" {
		t.Errorf("derived topic = %q, want +/gateway/mbnet", cfg.MQTT.Topic)
	}
	if cfg.Modbus.ResponseTimeout != 500*time.Millisecond {
		t.Errorf("response timeout = %v, want 500ms", cfg.Modbus.ResponseTimeout)
	}
	if cfg.Modbus.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", cfg.Modbus.Attempts)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("baud rate = %d, want 115200", cfg.Serial.BaudRate)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device: plant-7
mqtt:
  broker: tcp://broker.example:1883
  qos: 1
serial:
  port: /dev/ttyS2
  baudrate: 9600
  parity: even
modbus:
  attempts: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Device != "plant-7" {
		t.Errorf("device = %q", cfg.Device)
	}
	if cfg.MQTT.Topic != "+/plant-7/mbnet" {
		t.Errorf("topic not derived from device: %q", cfg.MQTT.Topic)
	}
	if cfg.Serial.BaudRate != 9600 || cfg.Serial.Parity != "even" {
		t.Errorf("serial overrides lost: %+v", cfg.Serial)
	}
	if cfg.Modbus.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", cfg.Modbus.Attempts)
	}
	// Untouched fields keep their defaults.
	if cfg.Serial.DataBits != 8 || cfg.Serial.StopBits != 1 {
		t.Errorf("defaults not preserved: %+v", cfg.Serial)
	}
}

func TestDeviceDerivesTopicOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "device: boiler-room\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MQTT.Topic != "+/boiler-room/mbnet" {
		t.Errorf("topic = %q, want +/boiler-room/mbnet", cfg.MQTT.Topic)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device: plant-7
mqtt:
  broker: tcp://broker.example:1883
  qos: 9
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted qos: 9")
	}
}

func TestTopicOverrideWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device: plant-7
mqtt:
  topic: custom/commands
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MQTT.Topic != "custom/commands" {
		t.Errorf("topic = %q, want custom/commands", cfg.MQTT.Topic)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Device = "roundtrip"
	cfg.applyDerived()

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Device != "roundtrip" {
		t.Errorf("device = %q, want roundtrip", loaded.Device)
	}
}
