package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/schemagraph/internal/config"
	"github.com/OFFIS-RIT/schemagraph/internal/queue"
	"github.com/OFFIS-RIT/schemagraph/internal/storage"
	"github.com/OFFIS-RIT/schemagraph/internal/timing"
	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load("", nil)
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}
	graphClient, err := cfg.NewGraphClient()
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}

	// Init s3 client
	store, err := storage.NewS3Store(ctx, storage.S3ParamsFromEnv())
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}

	deps := queue.RenderDeps{
		Client:      graphClient,
		Source:      cfg.NewSource(),
		Store:       store,
		NewRenderer: cfg.RendererFactory(),
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.RenderQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}
	publisher := &queue.ChannelPublisher{Ch: ch}

	// prefetch=1: one render at a time per worker
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.RenderQueue,
		queue.RenderQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.RenderQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.RenderQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.RenderQueue)
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.RenderQueue)

			if err := queue.ProcessRenderMessage(ctx, deps, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.RenderQueue, "err", err)
				queue.HandleProcessingError(publisher, msg, queue.RenderQueue, err)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.RenderQueue)
			}

			logger.Info("Processing time", "duration", timing.Since(startTime))
		}
	}
}
