// Package config loads the cliconfctl configuration: logging, connection defaults, dialect
// directory, the gNMI gateway and the device inventory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/types"
)

// EnvPrefix prefixes environment overrides, e.g. NANO_CLICONF_SSH_COMMAND_TIMEOUT
const EnvPrefix = "NANO_CLICONF"

// Config is the application configuration
type Config struct {
	SSH         SSHConfig      `mapstructure:"ssh"`
	Log         logger.Config  `mapstructure:"log"`
	Dialects    DialectsConfig `mapstructure:"dialects"`
	GNMI        GNMIConfig     `mapstructure:"gnmi"`
	Concurrency int            `mapstructure:"concurrency"`
	Devices     []DeviceConfig `mapstructure:"devices"`
}

// SSHConfig holds connection defaults applied to devices that do not set their own
type SSHConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
}

// DialectsConfig points at extra dialect records loaded next to the built-in ones
type DialectsConfig struct {
	Dir string `mapstructure:"dir"`
}

// GNMIConfig configures serve-gnmi
type GNMIConfig struct {
	Listen   string `mapstructure:"listen"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DeviceConfig is one inventory entry
type DeviceConfig struct {
	Name           string            `mapstructure:"name"`
	Dialect        string            `mapstructure:"dialect"`
	Address        string            `mapstructure:"address"`
	Port           int               `mapstructure:"port"`
	Transport      string            `mapstructure:"transport"`
	SpawnCommand   string            `mapstructure:"spawn_command"`
	Username       string            `mapstructure:"username"`
	Password       string            `mapstructure:"password"`
	EnablePassword string            `mapstructure:"enable_password"`
	PrivateKeyFile string            `mapstructure:"private_key_file"`
	KnownHostsFile string            `mapstructure:"known_hosts_file"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration     `mapstructure:"command_timeout"`
	Metadata       map[string]string `mapstructure:"metadata"`
}

// Load reads configPath, or cliconf.yaml from the usual directories when configPath is
// empty. A missing default file is not an error; defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cliconf")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.nano-cliconf")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	expandSecrets(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ssh.connect_timeout", 15*time.Second)
	v.SetDefault("ssh.command_timeout", 30*time.Second)
	v.SetDefault("ssh.known_hosts_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/cliconf.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("dialects.dir", "")
	v.SetDefault("concurrency", 8)

	v.SetDefault("gnmi.listen", "127.0.0.1:9339")
	v.SetDefault("gnmi.username", "")
	v.SetDefault("gnmi.password", "")
}

// expandSecrets replaces ${VAR} credentials with the environment value
func expandSecrets(config *Config) {
	for i := range config.Devices {
		d := &config.Devices[i]
		d.Password = expandEnv(d.Password)
		d.EnablePassword = expandEnv(d.EnablePassword)
	}
	config.GNMI.Password = expandEnv(config.GNMI.Password)
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		if value := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); value != "" {
			return value
		}
	}
	return s
}

// Validate checks the inventory
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("device %d has no name", i+1)
		}
		if seen[d.Name] {
			return fmt.Errorf("device %s is listed twice", d.Name)
		}
		seen[d.Name] = true

		switch types.TransportKind(d.Transport) {
		case "", types.TransportSSH, types.TransportExpectSSH:
			if d.Address == "" {
				return fmt.Errorf("device %s has no address", d.Name)
			}
		case types.TransportSpawn:
			if d.SpawnCommand == "" {
				return fmt.Errorf("device %s uses the spawn transport without spawn_command", d.Name)
			}
		case types.TransportTCP:
			if d.Address == "" || d.Port == 0 {
				return fmt.Errorf("device %s uses the tcp transport without address and port", d.Name)
			}
		case types.TransportMock:
		default:
			return fmt.Errorf("device %s: unknown transport %q", d.Name, d.Transport)
		}
	}
	return nil
}

// DeviceConfigs returns the inventory with connection defaults applied
func (c *Config) DeviceConfigs() []types.DeviceConfig {
	out := make([]types.DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, d.toTypes(c.SSH))
	}
	return out
}

// Device returns one inventory entry by name
func (c *Config) Device(name string) (types.DeviceConfig, error) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d.toTypes(c.SSH), nil
		}
	}
	return types.DeviceConfig{}, fmt.Errorf("device %q is not in the inventory", name)
}

func (d DeviceConfig) toTypes(defaults SSHConfig) types.DeviceConfig {
	out := types.DeviceConfig{
		Name:           d.Name,
		Dialect:        d.Dialect,
		Address:        d.Address,
		Port:           d.Port,
		Transport:      types.TransportKind(d.Transport),
		SpawnCommand:   d.SpawnCommand,
		Username:       d.Username,
		Password:       d.Password,
		EnablePassword: d.EnablePassword,
		PrivateKeyFile: d.PrivateKeyFile,
		KnownHostsFile: d.KnownHostsFile,
		ConnectTimeout: d.ConnectTimeout,
		CommandTimeout: d.CommandTimeout,
		Metadata:       make(map[string]string, len(d.Metadata)),
	}
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = defaults.ConnectTimeout
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = defaults.CommandTimeout
	}
	if out.KnownHostsFile == "" {
		out.KnownHostsFile = defaults.KnownHostsFile
	}
	return out
}
