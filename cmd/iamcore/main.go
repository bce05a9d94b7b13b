// Command iamcore hosts the read side of the core: it drains the event log
// into the projection tables, forwards events to Kafka when configured, and
// serves the admin surface (health, projection status, catch-up, skip).
// The write side (pkg/command) and the query side (pkg/query) are library
// surfaces embedded by the applications that own the public API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/plaenen/iamcore/pkg/api"
	"github.com/plaenen/iamcore/pkg/config"
	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/eventstore"
	essql "github.com/plaenen/iamcore/pkg/eventstore/sql"
	"github.com/plaenen/iamcore/pkg/notification"
	"github.com/plaenen/iamcore/pkg/observability"
	"github.com/plaenen/iamcore/pkg/projection"
	"github.com/plaenen/iamcore/pkg/projection/tables"
	"github.com/plaenen/iamcore/pkg/runner"
)

const serviceVersion = "0.1.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("iamcore exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:    "iamcore",
		ServiceVersion: serviceVersion,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer tel.Shutdown(ctx)

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	storage, err := essql.NewStorage(db)
	if err != nil {
		return err
	}
	es := eventstore.NewEventstore(storage, eventstore.WithPushMonitor(tel.Metrics))
	defer es.Close()

	registry, err := projection.NewRegistry(es, db, logger,
		projection.WithBatchSize(cfg.ProjectionBatchSize),
		projection.WithPollInterval(cfg.ProjectionPollInterval),
		projection.WithMetrics(tel.Metrics),
	)
	if err != nil {
		return err
	}

	handlers := []projection.Handler{
		tables.NewOrgsHandler(),
		tables.NewUsersHandler(),
		tables.NewLabelPoliciesHandler(),
		tables.NewLoginPoliciesHandler(),
	}

	var kafka *notification.KafkaPublisher
	if cfg.NotificationsEnabled() {
		kafka, err = notification.NewKafkaPublisher(notification.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return err
		}
		defer kafka.Close()
		handlers = append(handlers, notification.NewHandler(kafka))
	}

	for _, handler := range handlers {
		if err := registry.Register(ctx, handler); err != nil {
			return err
		}
	}

	auth := api.NewAuthenticator([]byte(cfg.JWTSecret), cfg.DefaultInstanceID)
	admin := api.NewAdminServer(es, registry, auth, logger)

	services := []runner.Service{
		projectionService{registry: registry, es: es},
		newHTTPService(cfg.ListenAddr, admin.Router(), logger),
	}

	return runner.New(services, runner.WithLogger(logger)).Run(ctx)
}

// projectionService adapts the registry to the runner lifecycle.
type projectionService struct {
	registry *projection.Registry
	es       *eventstore.Eventstore
}

func (projectionService) Name() string { return "projections" }

func (s projectionService) Start(ctx context.Context) error {
	s.registry.Start(ctx)
	return nil
}

func (s projectionService) Stop(context.Context) error {
	s.registry.Stop()
	return nil
}

func (s projectionService) HealthCheck(ctx context.Context) error {
	return s.es.Health(ctx)
}

// httpService runs the admin server.
type httpService struct {
	server *http.Server
	logger *slog.Logger
	errCh  chan error
}

func newHTTPService(addr string, handler http.Handler, logger *slog.Logger) *httpService {
	return &httpService{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		errCh:  make(chan error, 1),
	}
}

func (s *httpService) Name() string { return "admin-http" }

func (s *httpService) Start(context.Context) error {
	s.logger.Info("admin surface listening", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()

	// surface an immediate bind failure instead of reporting a started service
	select {
	case err := <-s.errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
