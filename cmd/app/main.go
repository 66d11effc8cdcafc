package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatserver/internal"
	"chatserver/internal/clog"
	"chatserver/internal/input"
	"chatserver/internal/presence"
	"chatserver/internal/realtime"
	"chatserver/internal/repository"
	"chatserver/internal/service"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	folder := "."
	if len(os.Args) > 1 {
		folder = os.Args[1]
	}

	cfg, err := internal.LoadConfig(folder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load the configuration: %v\n", err)
		os.Exit(1)
	}

	system := clog.NewSystemLogger(cfg.LogFile, cfg.LogMaxSizeMB, cfg.EnableLogging)
	defer system.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, system); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Shutting off...\n")
}

func run(ctx context.Context, cfg *internal.Config, system *clog.SystemLogger) error {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("could not open the database at %s: %v", cfg.DBPath, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	// The embedded engine serializes writers anyway; a single connection
	// avoids busy errors under concurrent transactions.
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("migration failed: %v", err)
	}
	store, err := repository.NewStore(db)
	if err != nil {
		return fmt.Errorf("could not initialize the store: %v", err)
	}

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, store.Conversations, system.Subsystem("fanout"))

	var bridge *realtime.Bridge
	if cfg.BridgeBind != "" {
		bridge, err = realtime.NewBridge(cfg.BridgeBind, cfg.BridgePeers, broadcaster, system.Subsystem("bridge"))
		if err != nil {
			return err
		}
		broadcaster.SetRelay(bridge)
		go bridge.Run()
		defer bridge.Stop()
	}

	var tracker presence.Tracker
	if cfg.RedisURL != "" {
		redisTracker, err := presence.NewRedisTracker(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("could not reach redis: %v", err)
		}
		tracker = redisTracker
	} else {
		tracker = presence.NewMemoryTracker()
	}

	conversationService := service.NewConversationService(store, broadcaster, system.Subsystem("conversations"))
	messageService := service.NewMessageService(store, broadcaster, system.Subsystem("messages"))
	presenceService := service.NewPresenceService(tracker, store, broadcaster, system.Subsystem("presence"))

	manager := input.NewInputManager()
	manager.SetLogger(system.Subsystem("input"))
	manager.SetRegistry(registry)
	manager.SetConversationService(conversationService)
	manager.SetMessageService(messageService)
	manager.SetPresenceService(presenceService)

	return manager.Run(ctx, &input.IptConfig{
		ServerPort:   cfg.HTTPServerPort,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}
