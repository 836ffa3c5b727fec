// Command ingressd runs the HTTP ingress/query/download service: the
// only external entry point into the conversion pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/health"
	"github.com/bookcast/pipeline/internal/ingress"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/pipelinecfg"
	"github.com/bookcast/pipeline/internal/store"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := pipelinecfg.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("starting ingressd v%s, config loaded from %s", version, *configPath)

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

	healthHandler := health.NewHandler(version)
	healthHandler.Register("object_store", func(ctx context.Context) (health.Status, error) {
		if _, err := objStore.Exists(ctx, ".healthcheck"); err != nil {
			return health.StatusUnhealthy, err
		}
		return health.StatusHealthy, nil
	})
	healthHandler.Register("store", func(ctx context.Context) (health.Status, error) {
		if _, _, err := redisStore.Get(ctx, "healthcheck"); err != nil {
			return health.StatusUnhealthy, err
		}
		return health.StatusHealthy, nil
	})

	h := &ingress.Handler{Store: redisStore, Broker: amqpBroker, ObjectStore: objStore}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", healthHandler.LivenessHandler())
	mux.HandleFunc("/health/ready", healthHandler.ReadinessHandler())
	mux.HandleFunc("/health", healthHandler.HealthHandler())

	mux.HandleFunc("/api/v1/books", h.UploadBook)
	mux.HandleFunc("/api/v1/books/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			h.GetBookStatus(w, r)
		case strings.Contains(r.URL.Path, "/chapters/") && strings.HasSuffix(r.URL.Path, "/audio"):
			h.DownloadChapterAudio(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	addr := fmt.Sprintf("%s:%d", cfg.Ingress.Host, cfg.Ingress.Port)
	readTimeout := time.Duration(cfg.Ingress.ReadTimeoutS) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: readTimeout,
	}

	go func() {
		log.Printf("ingressd listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down ingressd...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("ingressd stopped")
}
