package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Load loads configuration from a TOML file using viper.
// An empty path falls back to ./config.toml; a missing file is not an
// error and yields the defaults, so the server runs without any config.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = "./config.toml"
	}

	conf := &Config{}

	if !fileExists(configFile) {
		applyDefaults(conf)
		log.Infof("No configuration file at %s, using defaults", configFile)
		return conf, nil
	}

	viper.SetConfigFile(configFile)
	viper.SetConfigType("toml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := viper.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(conf)

	log.Infof("Configuration loaded from %s", configFile)
	return conf, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	conf := &Config{}
	applyDefaults(conf)
	return conf
}

// ExampleTOML renders the default configuration as a TOML document,
// used by the --genconfig flag.
func ExampleTOML() (string, error) {
	out, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("error marshalling example config: %w", err)
	}
	return string(out), nil
}

func applyDefaults(conf *Config) {
	if conf.Server.ListenAddress == "" {
		conf.Server.ListenAddress = "8080"
	}
	if conf.Server.UploadDir == "" {
		conf.Server.UploadDir = "./uploads"
	}
	if conf.Server.ThumbDir == "" {
		conf.Server.ThumbDir = ".thumbs"
	}
	if conf.Server.DBPath == "" {
		conf.Server.DBPath = "uploads.db"
	}
	if conf.Server.MaxUploadSize == "" {
		conf.Server.MaxUploadSize = "1GB"
	}

	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	if conf.Logging.MaxSize == 0 {
		conf.Logging.MaxSize = 100
	}
	if conf.Logging.MaxBackups == 0 {
		conf.Logging.MaxBackups = 7
	}
	if conf.Logging.MaxAge == 0 {
		conf.Logging.MaxAge = 30
	}

	if conf.Auth.CodeLength == 0 {
		conf.Auth.CodeLength = 6
	}
	if conf.Auth.AdvisoryExpiry == 0 {
		conf.Auth.AdvisoryExpiry = 60
	}
	if conf.Auth.ExchangeTimeout == "" {
		conf.Auth.ExchangeTimeout = "2s"
	}

	if conf.Thumbnails.Width == 0 {
		conf.Thumbnails.Width = 320
	}
	if conf.Thumbnails.Height == 0 {
		conf.Thumbnails.Height = 240
	}
	if conf.Thumbnails.Quality == 0 {
		conf.Thumbnails.Quality = 75
	}

	if conf.Redis.EventChannel == "" {
		conf.Redis.EventChannel = "cube:events"
	}

	if conf.Metrics.Path == "" {
		conf.Metrics.Path = "/metrics"
	}

	if conf.SideChannel.Bind == "" {
		conf.SideChannel.Bind = "127.0.0.1:7878"
	}
	if conf.SideChannel.User == "" {
		conf.SideChannel.User = "default"
	}

	if conf.Timeouts.Read == "" {
		conf.Timeouts.Read = "600s"
	}
	if conf.Timeouts.Write == "" {
		conf.Timeouts.Write = "600s"
	}
	if conf.Timeouts.Idle == "" {
		conf.Timeouts.Idle = "600s"
	}
	if conf.Timeouts.Shutdown == "" {
		conf.Timeouts.Shutdown = "30s"
	}

	if conf.Build.Version == "" {
		conf.Build.Version = "1.0.0"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
