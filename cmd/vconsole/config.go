package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/connection"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/discovery"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// EnvPrefix prefixes environment overrides (VCONSOLE_QUEUE_CAPACITY=10).
const EnvPrefix = "VCONSOLE"

// DefaultEndpoint is the backend address of a locally started simulator.
const DefaultEndpoint = "ws://localhost:7002/ws"

// Config holds the console configuration.
type Config struct {
	Endpoint    string          `mapstructure:"endpoint"`
	Role        string          `mapstructure:"role"`
	Interactive bool            `mapstructure:"interactive"`
	ProtocolLog string          `mapstructure:"protocol_log"`
	StateDir    string          `mapstructure:"state_dir"`
	Log         LogConfig       `mapstructure:"log"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Reconnect   ReconnectConfig `mapstructure:"reconnect"`
	Countdown   CountdownConfig `mapstructure:"countdown"`
	Discover    DiscoverConfig  `mapstructure:"discover"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type QueueConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	Overflow      string        `mapstructure:"overflow"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

type ReconnectConfig struct {
	Policy string `mapstructure:"policy"`
}

type CountdownConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type DiscoverConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Service   string        `mapstructure:"service"`
	Interface string        `mapstructure:"interface"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"endpoint":           "endpoint",
	"role":               "role",
	"interactive":        "interactive",
	"protocol-log":       "protocol_log",
	"state-dir":          "state_dir",
	"log-level":          "log.level",
	"queue-capacity":     "queue.capacity",
	"queue-overflow":     "queue.overflow",
	"drain-interval":     "queue.drain_interval",
	"reconnect":          "reconnect.policy",
	"countdown-interval": "countdown.interval",
	"discover":           "discover.enabled",
	"discover-timeout":   "discover.timeout",
	"discover-service":   "discover.service",
	"discover-interface": "discover.interface",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("role", "device")
	v.SetDefault("interactive", true)
	v.SetDefault("protocol_log", "")
	v.SetDefault("state_dir", "")
	v.SetDefault("log.level", LogLevelInfo)
	v.SetDefault("queue.capacity", 0)
	v.SetDefault("queue.overflow", connection.OverflowRejectNewest.String())
	v.SetDefault("queue.drain_interval", time.Second)
	v.SetDefault("reconnect.policy", connection.ReconnectManual.String())
	v.SetDefault("countdown.interval", time.Second)
	v.SetDefault("discover.enabled", false)
	v.SetDefault("discover.timeout", discovery.BrowseTimeout)
	v.SetDefault("discover.service", discovery.ServiceType)
	v.SetDefault("discover.interface", "")
}

func newFlagSet(output io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("vconsole", flag.ContinueOnError)
	fs.SetOutput(output)

	configFile := fs.String("config", "", "Configuration file path (YAML)")
	fs.String("endpoint", DefaultEndpoint, "Backend WebSocket URL")
	fs.String("role", "device", "Console role: device, dms")
	fs.Bool("interactive", true, "Run the interactive console")
	fs.String("protocol-log", "", "Write a protocol trace to this .vlog file")
	fs.String("state-dir", "", "Directory for persisted preferences")
	fs.String("log-level", LogLevelInfo, "Log level: debug, info, warn, error")
	fs.Int("queue-capacity", 0, "Maximum queued commands while disconnected (0 = unbounded)")
	fs.String("queue-overflow", connection.OverflowRejectNewest.String(), "Full queue policy: reject-newest, drop-oldest")
	fs.Duration("drain-interval", time.Second, "Queue drain check period")
	fs.String("reconnect", connection.ReconnectManual.String(), "Reconnect policy: manual, backoff")
	fs.Duration("countdown-interval", time.Second, "Expiration countdown refresh period")
	fs.Bool("discover", false, "Find the backend with mDNS instead of -endpoint")
	fs.Duration("discover-timeout", discovery.BrowseTimeout, "mDNS browse timeout")
	fs.String("discover-service", discovery.ServiceType, "mDNS service type")
	fs.String("discover-interface", "", "Network interface for mDNS (default: all)")

	return fs, configFile
}

// loadConfig resolves the configuration. Precedence, lowest first: built-in
// defaults, config file, environment (.env included), explicit flags.
func loadConfig(args []string, output io.Writer) (Config, error) {
	fs, configFile := newFlagSet(output)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if _, err := c.ConsoleRole(); err != nil {
		errs = append(errs, err)
	}
	if !c.Discover.Enabled && c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required unless discovery is enabled"))
	}
	if c.Queue.Capacity < 0 {
		errs = append(errs, fmt.Errorf("queue capacity must not be negative, got %d", c.Queue.Capacity))
	}
	if _, err := connection.ParseOverflow(c.Queue.Overflow); err != nil {
		errs = append(errs, err)
	}
	if _, err := connection.ParseReconnectPolicy(c.Reconnect.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ConsoleRole maps the role name to the console role.
func (c Config) ConsoleRole() (msglog.Role, error) {
	switch strings.ToLower(c.Role) {
	case "device":
		return msglog.RoleDevice, nil
	case "dms":
		return msglog.RoleDMS, nil
	default:
		return 0, fmt.Errorf("unknown role %q (must be device or dms)", c.Role)
	}
}

// DiscoveryRole maps the console role to the backend role to browse for.
func (c Config) DiscoveryRole() discovery.Role {
	if r, _ := c.ConsoleRole(); r == msglog.RoleDMS {
		return discovery.RoleDMS
	}
	return discovery.RoleDevice
}

// ConnectionConfig builds the manager configuration. Validate first.
func (c Config) ConnectionConfig() connection.Config {
	overflow, _ := connection.ParseOverflow(c.Queue.Overflow)
	policy, _ := connection.ParseReconnectPolicy(c.Reconnect.Policy)
	return connection.Config{
		Endpoint:      c.Endpoint,
		DrainInterval: c.Queue.DrainInterval,
		Queue: connection.QueueConfig{
			Capacity: c.Queue.Capacity,
			Overflow: overflow,
		},
		Reconnect: policy,
	}
}
