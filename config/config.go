// Package config loads server configuration from an optional YAML file
// with CANTINA_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type BackupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Dir      string        `mapstructure:"dir"`
	Interval time.Duration `mapstructure:"interval"`
}

type ReportsConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Reports  ReportsConfig  `mapstructure:"reports"`
}

// DefaultAllowedOrigins are the dev-server origins allowed by CORS when
// none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", append([]string(nil), DefaultAllowedOrigins...))
	v.SetDefault("database.path", "cantina.db")
	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.interval", 10*time.Minute)
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("reports.formats", []string{"csv", "xlsx"})
}

// Load reads configuration from path. An empty path looks for an optional
// config.yaml in the working directory; a missing default file is not an
// error, a missing explicit file is.
// Environment overrides use the CANTINA_ prefix, e.g. CANTINA_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CANTINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Backup.Enabled && c.Backup.Interval <= 0 {
		return fmt.Errorf("invalid backup.interval %s", c.Backup.Interval)
	}
	for _, f := range c.Reports.Formats {
		switch strings.ToLower(f) {
		case "csv", "xlsx":
		default:
			return fmt.Errorf("unsupported report format %q", f)
		}
	}
	return nil
}
