package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/correlate"
	"github.com/septivank/ev-telemetry-engine/internal/db"
	"github.com/septivank/ev-telemetry-engine/internal/efficiency"
	"github.com/septivank/ev-telemetry-engine/internal/httpapi"
	"github.com/septivank/ev-telemetry-engine/internal/metrics"
	"github.com/septivank/ev-telemetry-engine/internal/mq"
	"github.com/septivank/ev-telemetry-engine/internal/mqttsub"
	"github.com/septivank/ev-telemetry-engine/internal/repository"
	"github.com/septivank/ev-telemetry-engine/internal/service"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startConsumer consumes the ingest queue when RabbitMQ is configured
func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) error {
	if conn == nil {
		logger.Info("RABBITMQ_URL not set, queue ingestion disabled")
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: processor.ProcessMessage,
	})
	if err != nil {
		return err
	}

	consumer.RegisterLifecycle(lc)
	return nil
}

// startMQTTSubscriber subscribes to device heartbeats when a broker is configured
func startMQTTSubscriber(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) {
	if cfg.MQTT.Broker == "" {
		logger.Info("MQTT_BROKER not set, MQTT ingestion disabled")
		return
	}

	sub := mqttsub.NewSubscriber(mqttsub.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
		QoS:      byte(cfg.MQTT.QoS),
		Logger:   logger,
		Handler:  processor.ProcessDeviceReading,
	})
	sub.RegisterLifecycle(lc)
}

// startHTTPServer serves the telemetry, analytics and operational endpoints
func startHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	processor *service.ProcessorService,
	ingestion *service.IngestionService,
	analytics *service.AnalyticsService,
) {
	app := httpapi.NewApp(httpapi.Services{
		Ingestor:  processor,
		Status:    ingestion,
		Analytics: analytics,
		Gatherer:  registry,
		Logger:    logger,
	})
	addr := fmt.Sprintf(":%d", cfg.ServicePort)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := app.Listen(addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// ProvideRegistry creates the Prometheus registry served on /metrics
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the application collectors
func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool, cfg *config.Config) *repository.Repository {
	return repository.NewRepository(pool, repository.WithMonotonicStatus(cfg.Ingest.MonotonicStatus))
}

// ProvideReadingsStore exposes the repository as the store capability
func ProvideReadingsStore(repo *repository.Repository) repository.ReadingsStore {
	return repo
}

// ProvideCorrelator creates the vehicle-to-meter correlator
func ProvideCorrelator(cfg *config.Config) correlate.Correlator {
	return correlate.NewPrefixCorrelator(cfg.Analytics.VehiclePrefix, cfg.Analytics.MeterPrefix)
}

// ProvideClassifier creates the efficiency classifier
func ProvideClassifier(cfg *config.Config) *efficiency.Classifier {
	return efficiency.NewClassifier(cfg.Analytics.HealthyThreshold, cfg.Analytics.WarningThreshold)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideIngestionService creates the dual-write ingestion service
func ProvideIngestionService(store repository.ReadingsStore, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *service.IngestionService {
	return service.NewIngestionService(store, cfg, m, logger)
}

// ProvideAnalyticsService creates the analytics service
func ProvideAnalyticsService(
	store repository.ReadingsStore,
	correlator correlate.Correlator,
	classifier *efficiency.Classifier,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.AnalyticsService {
	return service.NewAnalyticsService(store, correlator, classifier, cfg, m, logger)
}

// ProvideMQConnection creates a RabbitMQ connection, or nil when RABBITMQ_URL is unset
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the ingested-event publisher, or nil without RabbitMQ
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if conn == nil {
		return nil, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.WorkerExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(
	ingestion *service.IngestionService,
	publisher service.EventPublisher,
	validator *validator.Validator,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ProcessorService {
	return service.NewProcessorService(ingestion, publisher, validator, cfg, logger)
}
