// cmd/watchtower/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"watchtower/internal/config"
	"watchtower/internal/database"
	"watchtower/internal/metrics"
	"watchtower/internal/monitoring"
	"watchtower/internal/notifications"
	"watchtower/internal/web"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "watchtower.yaml", "path to configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("watchtower %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"config":  *configPath,
	}).Info("Starting watchtower")

	store, err := database.NewBoltStore(cfg.Database.Path)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open database")
	}
	defer store.Close()

	var collector *metrics.Collector
	if cfg.Prometheus.Enabled {
		collector = metrics.NewCollector(store)
	}

	hub := web.NewHub(collector)

	var notifiers monitoring.MultiNotifier
	notifiers = append(notifiers, hub)
	if cfg.Notifications.Discord.Enabled {
		notifiers = append(notifiers, notifications.NewDiscordClient(
			cfg.Notifications.Discord.WebhookURL,
			cfg.Notifications.Discord.Username,
			cfg.Notifications.Discord.MaxPerMinute,
			time.Minute,
		))
		logrus.Info("Discord notifications enabled")
	}

	alerts := monitoring.NewAlertManager(store, notifiers, collector,
		time.Duration(cfg.Monitoring.DedupWindowSeconds)*time.Second)

	schedule := monitoring.NewScheduleEvaluator(database.WindowConfig{
		StartTime: cfg.BusinessHours.StartTime,
		EndTime:   cfg.BusinessHours.EndTime,
		Weekdays:  cfg.BusinessHours.Weekdays,
		Timezone:  cfg.BusinessHours.Timezone,
	})
	liveness := monitoring.NewLivenessEvaluator(schedule)
	tracker := monitoring.NewServiceTracker(store, alerts)
	poller := monitoring.NewHTTPPoller()

	var watchdog *monitoring.InternetWatchdog
	if cfg.Monitoring.Internet.Enabled {
		watchdog = monitoring.NewInternetWatchdog(alerts,
			cfg.Monitoring.Internet.CheckURLs,
			time.Duration(cfg.Monitoring.Internet.TimeoutSeconds)*time.Second)
	}

	var upstream *monitoring.UpstreamPinger
	if cfg.Monitoring.Upstream.Enabled {
		upstream = monitoring.NewUpstreamPinger(cfg.Monitoring.Upstream.URL,
			time.Duration(cfg.Monitoring.Upstream.TimeoutSeconds)*time.Second)
	}

	engine := monitoring.NewEngine(store, alerts, liveness, tracker, poller, watchdog, upstream, collector, monitoring.Options{
		HeartbeatSweepInterval: time.Duration(cfg.Monitoring.HeartbeatSweepSeconds) * time.Second,
		ServiceSweepInterval:   time.Duration(cfg.Monitoring.ServiceSweepSeconds) * time.Second,
		InternetCheckInterval:  time.Duration(cfg.Monitoring.Internet.IntervalSeconds) * time.Second,
		UpstreamPingInterval:   time.Duration(cfg.Monitoring.Upstream.IntervalSeconds) * time.Second,
		CleanupInterval:        time.Duration(cfg.Monitoring.CleanupHours) * time.Hour,
		PollWorkers:            cfg.Monitoring.PollWorkers,
		HeartbeatRetention:     time.Duration(cfg.Database.HeartbeatRetentionDays) * 24 * time.Hour,
		AlertRetention:         time.Duration(cfg.Database.AlertRetentionDays) * 24 * time.Hour,
		ServiceCheckRetention:  time.Duration(cfg.Database.ServiceCheckRetentionDays) * 24 * time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	server := web.NewServer(cfg, store, alerts, liveness, hub)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			logrus.WithError(err).Error("Web server exited")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Web server shutdown failed")
	}

	cancel()
	engine.Stop()
	logrus.Info("Shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}
