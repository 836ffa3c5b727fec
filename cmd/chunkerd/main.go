// Command chunkerd runs the chunker worker: it consumes the chunker
// queue, splits chapter text into size-bounded chunks and hands them to
// the synthesizer.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/chunker"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/pipelinecfg"
)

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := pipelinecfg.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("starting chunkerd, config loaded from %s", *configPath)

	amqpBroker, err := broker.NewAMQPBroker(broker.AMQPOptions{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		User:     cfg.Broker.User,
		Password: cfg.Broker.Password,
		VHost:    cfg.Broker.VHost,
	})
	if err != nil {
		log.Fatalf("failed to connect to broker: %v", err)
	}
	defer amqpBroker.Close()

	objStore, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: cfg.ObjectStore.Adapter,
		Local:   objectstore.LocalOptions{BasePath: cfg.ObjectStore.Local.BasePath},
		S3: objectstore.S3Options{
			Endpoint:        cfg.ObjectStore.S3.Endpoint,
			Region:          cfg.ObjectStore.S3.Region,
			Bucket:          cfg.ObjectStore.S3.Bucket,
			AccessKeyID:     cfg.ObjectStore.S3.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.S3.SecretAccessKey,
		},
	})
	if err != nil {
		log.Fatalf("failed to create object store: %v", err)
	}
	defer objStore.Close()

	w := &chunker.Worker{
		Broker:        amqpBroker,
		ObjectStore:   objStore,
		MaxChunkBytes: cfg.Pipeline.MaxChunkBytes,
		MaxRetries:    cfg.Pipeline.MaxRetries,
		RetryDelay:    time.Duration(cfg.Pipeline.RetryBackoffMs) * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- w.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("shutting down chunkerd...")
		cancel()
	case err := <-runErr:
		if err != nil {
			log.Fatalf("chunkerd stopped: %v", err)
		}
	}

	log.Println("chunkerd stopped")
}
