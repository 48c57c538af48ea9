package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/internal/server"
	"github.com/fit-portal/placement/modules/internship"
	"github.com/fit-portal/placement/pkg/application"
	"github.com/fit-portal/placement/pkg/configuration"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/logging"
	"github.com/fit-portal/placement/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	var pool *pgxpool.Pool
	if conf.StoreBackend == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		var err error
		pool, err = pgxpool.New(ctx, conf.Database.Opts)
		cancel()
		if err != nil {
			panic(err)
		}
		defer pool.Close()
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	placement := internship.NewModule(internship.OptionsFrom(conf))
	if err := application.LoadModules(app, placement); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	defer func() {
		if err := placement.Close(); err != nil {
			logger.WithError(err).Warn("failed to close module resources")
		}
	}()

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startWorkers(ctx, app, logger)

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func startWorkers(ctx context.Context, app application.Application, logger *logrus.Logger) {
	for _, w := range app.Workers() {
		workerLog := logger.WithField("worker", w.Name())
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				workerLog.WithError(err).Error("worker stopped")
			}
		}()
	}
}
