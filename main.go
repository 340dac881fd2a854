package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "planpro/app/configs"
	"planpro/app/core/assistant"
	"planpro/app/core/interaction/cli"
	"planpro/app/core/provider"
	"planpro/app/core/store"
	"planpro/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("PlanPro Assistant Starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	taskStore, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	defer taskStore.Close()
	logger.Info("Store initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catch up recurring schedules missed since the last run.
	if added, err := taskStore.GenerateDue(ctx, time.Now()); err != nil {
		logger.Error("Failed to generate scheduled tasks: %v", err)
	} else if added > 0 {
		logger.Info("Generated %d scheduled tasks", added)
	}

	gateway := provider.NewClient()
	conv := assistant.NewConversation(gateway, taskStore,
		func() config.AIConfig { return cfgManager.Get().AI },
		cfg.Assistant)

	session := cli.NewSession(conv, taskStore, cfgManager, gateway, os.Stdin, os.Stdout)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := session.Run(ctx); err != nil {
			logger.Error("Session ended with error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal: %v. Shutting down...", sig)
		cancel()
	case <-done:
	}
	logger.Info("PlanPro Assistant stopped.")
}
