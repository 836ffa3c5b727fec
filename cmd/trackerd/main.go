// Command trackerd runs the event tracker: the pipeline's single-writer
// aggregate-state process. Exactly one instance should run at a time.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
	"github.com/bookcast/pipeline/internal/pipelinecfg"
	"github.com/bookcast/pipeline/internal/store"
	"github.com/bookcast/pipeline/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := pipelinecfg.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("starting trackerd, config loaded from %s", *configPath)

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

	redisStore, err := store.NewRedisStore(store.RedisOptions{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer redisStore.Close()

	w := &tracker.Worker{
		Tracker: &events.Tracker{Store: redisStore, Broker: amqpBroker},
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
		log.Println("shutting down trackerd...")
		cancel()
	case err := <-runErr:
		if err != nil {
			log.Fatalf("trackerd stopped: %v", err)
		}
	}

	log.Println("trackerd stopped")
}
