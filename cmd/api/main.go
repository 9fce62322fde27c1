package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/promoplaza/redemption-service/db/migrations"
	"github.com/promoplaza/redemption-service/internal/config"
	httpdelivery "github.com/promoplaza/redemption-service/internal/delivery/http"
	"github.com/promoplaza/redemption-service/internal/delivery/kafka"
	"github.com/promoplaza/redemption-service/internal/metrics"
	"github.com/promoplaza/redemption-service/internal/repository"
	"github.com/promoplaza/redemption-service/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repository.RunMigrations(cfg.DatabaseURL, migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("database migrations applied")

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	metrics.MustRegister()

	store := repository.New(pool)
	service := usecase.NewRedemptionService(store, log)

	var gateway usecase.RedemptionGateway
	if cfg.EventDrivenEnabled {
		gateway, err = startKafka(ctx, cfg, service, log)
		if err != nil {
			return fmt.Errorf("start kafka: %w", err)
		}
	} else {
		log.Info().Msg("event-driven mode disabled, using direct gateway")
		gateway = kafka.NewDirectGateway(service)
	}

	handler := httpdelivery.NewHandler(gateway, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.Routes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startKafka wires the request/reply exchange: an admin pass to ensure
// topics, one consumer group for the request topics, a second group for the
// retry topics, and a per-instance reply poller feeding the gateway.
func startKafka(ctx context.Context, cfg *config.Config, service *usecase.RedemptionService, log zerolog.Logger) (usecase.RedemptionGateway, error) {
	adminClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID(cfg.KafkaClientID),
	)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopics(ctx, adminClient, cfg); err != nil {
		adminClient.Close()
		return nil, err
	}

	gateway := kafka.NewGateway(cfg, adminClient, log)

	consumerClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID(cfg.KafkaClientID),
		kgo.ConsumerGroup(cfg.KafkaGroupID),
		kgo.ConsumeTopics(kafka.TopicRedeemRequest, kafka.TopicIssueRequest, kafka.TopicGetRequest),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	consumer := kafka.NewConsumer(consumerClient, service, log)
	go consumer.Start(ctx)

	retryClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID(cfg.KafkaClientID),
		kgo.ConsumerGroup(cfg.KafkaRetryGroupID),
		kgo.ConsumeTopics(kafka.TopicRedeemRetry, kafka.TopicIssueRetry, kafka.TopicGetRetry),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	retryConsumer := kafka.NewConsumer(retryClient, service, log)
	go retryConsumer.StartRetry(ctx)

	replyClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID(cfg.KafkaClientID),
		kgo.ConsumeTopics(kafka.TopicReplyPrefix+cfg.KafkaInstanceID),
	)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			fetches := replyClient.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}
			iter := fetches.RecordIter()
			for !iter.Done() {
				gateway.HandleResponse(iter.Next().Value)
			}
		}
	}()

	<-consumer.Ready()
	log.Info().Msg("kafka consumers started")
	return gateway, nil
}
