// Package scanning handles optional ClamAV scanning of uploads and the
// optional Redis connection used to mirror broadcast events.
package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/config"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Scanner wraps a ClamAV client. A nil Scanner scans nothing and accepts
// everything.
type Scanner struct {
	client *clamd.Clamd
}

// NewScanner connects to clamd per config. Disabled config yields nil.
func NewScanner(cfg *config.ClamAVConfig) (*Scanner, error) {
	if !cfg.ClamAVEnabled {
		log.Info("ClamAV scanning disabled")
		return nil, nil
	}

	client := clamd.NewClamd(cfg.ClamAVSocket)
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("ClamAV connection failed: %w", err)
	}

	log.Infof("ClamAV initialized: %s", cfg.ClamAVSocket)
	return &Scanner{client: client}, nil
}

// ScanFile scans a stored file and returns an error when a threat is found.
func (s *Scanner) ScanFile(path string) error {
	if s == nil || s.client == nil {
		return nil
	}

	response, err := s.client.ScanFile(path)
	if err != nil {
		return fmt.Errorf("ClamAV scan error: %w", err)
	}

	for r := range response {
		if r.Status == clamd.RES_FOUND {
			log.Warnf("ClamAV: threat found in %s: %s", path, r.Description)
			return fmt.Errorf("virus found: %s", r.Description)
		}
		if r.Status == clamd.RES_ERROR {
			return fmt.Errorf("scan error: %s", r.Description)
		}
	}

	log.Debugf("ClamAV: %s is clean", path)
	return nil
}

// NewRedisClient connects to Redis per config. Disabled config or an
// unreachable server yields nil; the mirror is strictly optional.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.RedisEnabled {
		log.Info("Redis disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDBIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			log.Warnf("Redis connection failed (non-critical): %v", err)
			return nil, nil
		}
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}

	log.Infof("Redis connected: %s", cfg.RedisAddr)
	return client, nil
}
