// Package main starts the wartel booth service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wartelsys/wartel/internal/app"
	"github.com/wartelsys/wartel/internal/config"
	"github.com/wartelsys/wartel/internal/security"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		migrate    = flag.Bool("migrate", false, "run database migrations and exit")
		issueToken = flag.Bool("issue-token", false, "print a signed actor token and exit")
		actorID    = flag.String("actor", "", "actor id for -issue-token")
		actorName  = flag.String("name", "", "display name for -issue-token")
		staff      = flag.Bool("staff", false, "grant the staff flag for -issue-token")
	)
	flag.Parse()

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		log.Fatalf("load config: %v", errLoad)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *migrate:
		if errMigrate := app.Migrate(ctx, *configPath); errMigrate != nil {
			log.Fatalf("migrate: %v", errMigrate)
		}
		log.Info("migrations applied")
	case *issueToken:
		if *actorID == "" {
			log.Fatal("-issue-token requires -actor")
		}
		token, errToken := security.GenerateActorToken(cfg.Auth.JWTSecret, *actorID, *actorName, *staff, cfg.Auth.TokenExpiry.Std())
		if errToken != nil {
			log.Fatalf("issue token: %v", errToken)
		}
		fmt.Println(token)
	default:
		if errRun := app.RunServer(ctx, *configPath); errRun != nil {
			log.Fatalf("serve: %v", errRun)
		}
	}
}

// setupLogging applies the configured level and optional rotating file
// output.
func setupLogging(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(cfg.Level)
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
}
