// Package app wires the service together: config, database, ledger, session
// orchestration, signaling relay, change feeds, and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/wartelsys/wartel/internal/config"
	"github.com/wartelsys/wartel/internal/db"
	"github.com/wartelsys/wartel/internal/feed"
	internalhttp "github.com/wartelsys/wartel/internal/http"
	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/relay"
	"github.com/wartelsys/wartel/internal/session"
	"github.com/wartelsys/wartel/internal/store"
)

const shutdownGrace = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the booth service and blocks until the context is
// cancelled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	bus := feed.NewBus()
	var pub feed.Publisher = feed.LocalPublisher{Bus: bus}
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		mirror := feed.NewMirror(client, bus, cfg.Redis.Channel)
		go mirror.Run(ctx)
		pub = mirror
		log.Infof("app: change feed mirrored via redis at %s", cfg.Redis.Addr)
	}

	st := store.New(conn, pub)
	l := ledger.New(conn)

	orchestrator := session.New(conn, st)
	defer orchestrator.Close()

	hub := relay.NewHub(relay.Config{
		MaxMessageBytes:   cfg.Signaling.MaxMessageBytes,
		MessagesPerSecond: cfg.Signaling.MessagesPerSecond,
		SendQueueDepth:    cfg.Signaling.SendQueueDepth,
	}, orchestrator)
	orchestrator.AttachNotifier(hub)

	if errResume := orchestrator.Resume(ctx); errResume != nil {
		return errResume
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	internalhttp.RegisterRoutes(engine, internalhttp.Deps{
		DB:           conn,
		Config:       cfg,
		Ledger:       l,
		Store:        st,
		Orchestrator: orchestrator,
		Hub:          hub,
		Bus:          bus,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("app: listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return errServe
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.Warnf("app: shutdown: %v", errShutdown)
	}
	return nil
}
