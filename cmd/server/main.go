// Cube server: personal media-sync backend. Clients upload photos and
// RAW files plus thumbnails; the server deduplicates by content hash,
// organizes files by user and date, persists metadata in SQLite, and
// pushes completion events to every connected WebSocket client.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/auth"
	"github.com/cubesync/cube-server/internal/config"
	"github.com/cubesync/cube-server/internal/handlers"
	"github.com/cubesync/cube-server/internal/hub"
	"github.com/cubesync/cube-server/internal/ingest"
	"github.com/cubesync/cube-server/internal/logging"
	"github.com/cubesync/cube-server/internal/metrics"
	"github.com/cubesync/cube-server/internal/network"
	"github.com/cubesync/cube-server/internal/scanning"
	"github.com/cubesync/cube-server/internal/server"
	"github.com/cubesync/cube-server/internal/sidechannel"
	"github.com/cubesync/cube-server/internal/storage"
	"github.com/cubesync/cube-server/internal/store"
	"github.com/cubesync/cube-server/internal/thumbs"
	"github.com/cubesync/cube-server/internal/utils"
)

var log = logrus.New()

func main() {
	var (
		configFile  = flag.String("config", "./config.toml", "Path to configuration file")
		genConfig   = flag.Bool("genconfig", false, "Print example configuration and exit")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *genConfig {
		example, err := config.ExampleTOML()
		if err != nil {
			log.Fatalf("Failed to generate example config: %v", err)
		}
		fmt.Print(example)
		return
	}

	conf, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *showVersion {
		fmt.Printf("cube-server %s\n", conf.Build.Version)
		return
	}

	logging.Setup(&conf.Logging, log)
	propagateLogger(log)
	logging.LogSystemInfo(log, conf.Build.Version)

	metrics.InitMetrics()

	st, err := store.New(conf.Server.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize metadata store: %v", err)
	}

	uploadDir, err := storage.NewUploadDir(conf.Server.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}
	if err := os.MkdirAll(conf.Server.ThumbDir, 0755); err != nil {
		log.Fatalf("Failed to prepare thumbnail directory: %v", err)
	}

	scanner, err := scanning.NewScanner(&conf.ClamAV)
	if err != nil {
		log.Fatalf("Failed to initialize ClamAV: %v", err)
	}

	eventHub := hub.New()
	if redisClient, err := scanning.NewRedisClient(&conf.Redis); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	} else if redisClient != nil {
		eventHub.SetRedisMirror(redisClient, conf.Redis.EventChannel)
	}

	generator := thumbs.NewGenerator(conf.Server.ThumbDir,
		conf.Thumbnails.Width, conf.Thumbnails.Height, conf.Thumbnails.Quality,
		conf.Thumbnails.GenerateOnUpload)

	var minFree uint64
	if conf.Server.MinFreeBytes != "" {
		n, err := utils.ParseSize(conf.Server.MinFreeBytes)
		if err != nil {
			log.Warnf("Invalid min_free_bytes %q: %v", conf.Server.MinFreeBytes, err)
		} else {
			minFree = uint64(n)
		}
	}

	maxUpload, err := utils.ParseSize(conf.Server.MaxUploadSize)
	if err != nil {
		log.Warnf("Invalid max_upload_size %q, defaulting to 1GB", conf.Server.MaxUploadSize)
		maxUpload = 1 << 30
	}

	ingestSvc := ingest.NewService(st, eventHub, uploadDir, conf.Server.ThumbDir,
		scanner, generator, minFree)
	broker := auth.NewBroker(&conf.Auth, st, eventHub)

	h := &handlers.Handlers{
		Ingest:    ingestSvc,
		Broker:    broker,
		Hub:       eventHub,
		UploadDir: uploadDir,
		ThumbDir:  conf.Server.ThumbDir,
		MaxUpload: maxUpload,
	}
	mux := h.Routes()
	if conf.Metrics.Enabled {
		mux.Handle(conf.Metrics.Path, promhttp.Handler())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.StartSystemMonitoring(ctx.Done())

	if conf.SideChannel.Enabled {
		side := sidechannel.New(&conf.SideChannel)
		go func() {
			if err := side.ListenAndServe(ctx); err != nil {
				log.Errorf("Side channel failed: %v", err)
			}
		}()
	}

	addr := conf.Server.BindIP + ":" + conf.Server.ListenAddress
	srv := server.New(addr, mux,
		parseDuration(conf.Timeouts.Read, 600*time.Second),
		parseDuration(conf.Timeouts.Write, 600*time.Second),
		parseDuration(conf.Timeouts.Idle, 600*time.Second))

	server.SetupGracefulShutdown(srv, cancel,
		parseDuration(conf.Timeouts.Shutdown, 30*time.Second), func() {
			if err := st.Close(); err != nil {
				log.Errorf("Failed to close metadata store: %v", err)
			}
		})

	server.PrintStartupBanner(conf.Build.Version, network.LocalIP(), conf.Server.ListenAddress)

	if err := server.Start(srv); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// propagateLogger hands the configured logger to every internal package.
func propagateLogger(l *logrus.Logger) {
	config.SetLogger(l)
	store.SetLogger(l)
	storage.SetLogger(l)
	metrics.SetLogger(l)
	hub.SetLogger(l)
	auth.SetLogger(l)
	ingest.SetLogger(l)
	thumbs.SetLogger(l)
	scanning.SetLogger(l)
	handlers.SetLogger(l)
	server.SetLogger(l)
	sidechannel.SetLogger(l)
	network.SetLogger(l)
}
