// Package logging handles log setup including rotation and system info.
package logging

import (
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cubesync/cube-server/internal/config"
)

// Setup configures the given logger from the [logging] config section.
// With a file configured, output goes through lumberjack rotation;
// otherwise it stays on stdout.
func Setup(cfg *config.LoggingConfig, log *logrus.Logger) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		log.SetOutput(os.Stdout)
	}

	log.Infof("Logging initialized at level: %s", level.String())
}

// LogSystemInfo logs host information at startup.
func LogSystemInfo(log *logrus.Logger, version string) {
	hostname, _ := os.Hostname()
	log.Infof("=== System Information ===")
	log.Infof("Hostname: %s", hostname)
	log.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)
	log.Infof("Go version: %s", runtime.Version())
	log.Infof("CPUs available: %d", runtime.NumCPU())
	log.Infof("Version: %s", version)
	log.Infof("PID: %d", os.Getpid())
	log.Infof("==========================")
}
