// Package config loads the YAML configuration file.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"upsbox/internal/device"
)

// Config is the file configuration of the appliance.
type Config struct {
	DeviceName string `yaml:"device_name"`
	Broker     struct {
		Host string `yaml:"host"`
		Port uint16 `yaml:"port"`
	} `yaml:"broker"`
	Network struct {
		Interface      string        `yaml:"interface"`
		ConfigIP       string        `yaml:"config_ip"`
		RestoreOnStart bool          `yaml:"restore_on_start"`
		GracePeriod    time.Duration `yaml:"grace_period"`
		// DryRun keeps interface changes in memory instead of applying them.
		DryRun bool `yaml:"dry_run"`
	} `yaml:"network"`
	Web struct {
		Listen         string   `yaml:"listen"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled        bool          `yaml:"enabled"`
		ClientID       string        `yaml:"client_id"`
		Username       string        `yaml:"username"`
		Password       string        `yaml:"password"`
		TopicPrefix    string        `yaml:"topic_prefix"`
		Discovery      bool          `yaml:"discovery"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	} `yaml:"mqtt"`
	Serial struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
		Baud    int    `yaml:"baud"`
	} `yaml:"serial"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file can be loaded.
func Default() *Config {
	var c Config
	c.DeviceName = "UPS"
	c.Broker.Host = "127.0.0.1"
	c.Broker.Port = 1883
	c.Network.Interface = "eth0"
	c.Network.ConfigIP = "192.168.0.254"
	c.Network.RestoreOnStart = true
	c.Network.GracePeriod = time.Second
	c.Web.Listen = "0.0.0.0:8080"
	c.Store.Path = "upsbox.db"
	c.MQTT.Enabled = true
	c.MQTT.ClientID = "upsbox"
	c.MQTT.TopicPrefix = "upsbox"
	c.MQTT.Discovery = true
	c.MQTT.ReconnectDelay = 5 * time.Second
	c.Serial.Port = "/dev/ttyS1"
	c.Serial.Baud = 9600
	c.Metrics.Enabled = true
	c.Log.Level = "info"
	c.Log.Format = "text"
	return &c
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.BrokerEndpoint(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if _, err := c.ConfigAddr(); err != nil {
		return err
	}
	if c.Network.Interface == "" {
		return fmt.Errorf("network.interface is required")
	}
	if c.Network.GracePeriod < 0 {
		return fmt.Errorf("network.grace_period must not be negative")
	}
	if c.Web.Listen == "" {
		return fmt.Errorf("web.listen is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			return fmt.Errorf("serial.port is required when serial is enabled")
		}
		if c.Serial.Baud <= 0 {
			return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
		}
	}
	return nil
}

// BrokerEndpoint returns the validated broker endpoint.
func (c *Config) BrokerEndpoint() (device.Broker, error) {
	return device.NewBroker(c.Broker.Host, c.Broker.Port)
}

// ConfigAddr returns the administrative address of the interface.
func (c *Config) ConfigAddr() (netip.Addr, error) {
	addr, err := netip.ParseAddr(c.Network.ConfigIP)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("network.config_ip %q is not an IPv4 address", c.Network.ConfigIP)
	}
	return addr, nil
}
