package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"

	"github.com/certsmith/certportal/internal/api"
	"github.com/certsmith/certportal/internal/ca"
	"github.com/certsmith/certportal/internal/config"
	"github.com/certsmith/certportal/internal/db"
	"github.com/certsmith/certportal/internal/db/repository"
	"github.com/certsmith/certportal/internal/service"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional, env vars apply on top)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Certificate Portal\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	setupLogging(cfg)
	log.WithField("version", Version).Info("starting certificate portal")

	log.WithField("path", cfg.Database.Path).Info("connecting to database")
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close()

	log.Info("running database migrations")
	if err := db.RunMigrations(database); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	certRepo := repository.NewCertRepository(database.DB)
	signer := ca.NewClient(cfg.CA.Endpoint, cfg.GetCATimeout(), cfg.CA.RetryMax)
	issuer := service.NewIssuer(signer, certRepo)

	server := api.NewServer(cfg, issuer, certRepo)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("starting HTTP server")
		if err := server.Run(); err != nil {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-quit
	log.Info("shutting down")
	database.Close()
}

func setupLogging(cfg *config.Config) {
	if cfg.Logging.Format == "json" {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}

	switch cfg.Logging.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
