// Package config contains all configuration types and loading logic.
package config

// ServerConfig holds server-level configuration.
type ServerConfig struct {
	ListenAddress string `toml:"listen_address" mapstructure:"listen_address"`
	BindIP        string `toml:"bind_ip" mapstructure:"bind_ip"`
	UploadDir     string `toml:"upload_dir" mapstructure:"upload_dir"`
	ThumbDir      string `toml:"thumb_dir" mapstructure:"thumb_dir"`
	DBPath        string `toml:"db_path" mapstructure:"db_path"`
	MaxUploadSize string `toml:"max_upload_size" mapstructure:"max_upload_size"`
	MinFreeBytes  string `toml:"min_free_bytes" mapstructure:"min_free_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSize    int    `toml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `toml:"max_age" mapstructure:"max_age"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// AuthConfig holds code/token handshake configuration.
type AuthConfig struct {
	CodeLength      int    `toml:"code_length" mapstructure:"code_length"`
	AdvisoryExpiry  int    `toml:"advisory_expiry" mapstructure:"advisory_expiry"`
	ExchangeTimeout string `toml:"exchange_timeout" mapstructure:"exchange_timeout"`
	EnableJWT       bool   `toml:"enablejwt" mapstructure:"enablejwt"`
	JWTSecret       string `toml:"jwtsecret" mapstructure:"jwtsecret"`
}

// ThumbnailsConfig holds server-side thumbnail generation configuration.
type ThumbnailsConfig struct {
	GenerateOnUpload bool `toml:"generate_on_upload" mapstructure:"generate_on_upload"`
	Width            int  `toml:"width" mapstructure:"width"`
	Height           int  `toml:"height" mapstructure:"height"`
	Quality          int  `toml:"quality" mapstructure:"quality"`
}

// ClamAVConfig holds ClamAV configuration.
type ClamAVConfig struct {
	ClamAVEnabled bool   `toml:"clamavenabled" mapstructure:"clamavenabled"`
	ClamAVSocket  string `toml:"clamavsocket" mapstructure:"clamavsocket"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	RedisEnabled  bool   `toml:"redisenabled" mapstructure:"redisenabled"`
	RedisDBIndex  int    `toml:"redisdbindex" mapstructure:"redisdbindex"`
	RedisAddr     string `toml:"redisaddr" mapstructure:"redisaddr"`
	RedisPassword string `toml:"redispassword" mapstructure:"redispassword"`
	EventChannel  string `toml:"event_channel" mapstructure:"event_channel"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

// SideChannelConfig holds the local TCP config side-channel configuration.
type SideChannelConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Bind    string `toml:"bind" mapstructure:"bind"`
	User    string `toml:"user" mapstructure:"user"`
	BaseDir string `toml:"base_dir" mapstructure:"base_dir"`
}

// TimeoutConfig holds HTTP server timeout configuration.
type TimeoutConfig struct {
	Read     string `toml:"readtimeout" mapstructure:"readtimeout"`
	Write    string `toml:"writetimeout" mapstructure:"writetimeout"`
	Idle     string `toml:"idletimeout" mapstructure:"idletimeout"`
	Shutdown string `toml:"shutdown" mapstructure:"shutdown"`
}

// BuildConfig holds build metadata.
type BuildConfig struct {
	Version string `toml:"version" mapstructure:"version"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server      ServerConfig      `toml:"server" mapstructure:"server"`
	Logging     LoggingConfig     `toml:"logging" mapstructure:"logging"`
	Auth        AuthConfig        `toml:"auth" mapstructure:"auth"`
	Thumbnails  ThumbnailsConfig  `toml:"thumbnails" mapstructure:"thumbnails"`
	ClamAV      ClamAVConfig      `toml:"clamav" mapstructure:"clamav"`
	Redis       RedisConfig       `toml:"redis" mapstructure:"redis"`
	Metrics     MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
	SideChannel SideChannelConfig `toml:"side_channel" mapstructure:"side_channel"`
	Timeouts    TimeoutConfig     `toml:"timeouts" mapstructure:"timeouts"`
	Build       BuildConfig       `toml:"build" mapstructure:"build"`
}
