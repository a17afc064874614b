package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/restboard/restboard/internal/dal/postgres"
	"github.com/restboard/restboard/internal/dal/rabbitmq"
	outboxrepo "github.com/restboard/restboard/internal/dal/repositories/outbox/postgres"
	"github.com/restboard/restboard/internal/jaeger"
	"github.com/restboard/restboard/internal/service/services/ordersvc"
	httptransport "github.com/restboard/restboard/internal/transport/http"
	"github.com/restboard/restboard/internal/transport/ws"
	outboxworker "github.com/restboard/restboard/internal/worker/outbox"
)

// App represents the server application.
type App struct {
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	hub            *ws.Hub
	outboxWorker   *outboxworker.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	tracerShutdown func(ctx context.Context) error
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	tracerShutdown := jaeger.MustInitTracer("restboard")

	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	hub := ws.NewHub()

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithBroadcaster(hub),
	)

	outboxWorker := outboxworker.NewWorker(
		outboxrepo.NewOutboxRepository(postgresClient.DB()),
		rabbitClient,
	)

	transport := httptransport.NewHTTPTransport(orderSvc, hub, postgresClient)
	transport.RegisterRoutes()

	return &App{
		orderSvc:       orderSvc,
		transport:      transport,
		hub:            hub,
		outboxWorker:   outboxWorker,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		tracerShutdown: tracerShutdown,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting outbox worker")
		a.outboxWorker.Start(ctx)
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops components in dependency order: HTTP first so no
// new work arrives, then the push hub, the worker and the clients.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	a.hub.Stop()
	slog.Info("Push hub stopped")

	a.outboxWorker.Stop()
	slog.Info("Outbox worker stopped")

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if err := a.postgresClient.Close(); err != nil {
		slog.Error("Database connection close error", "error", err)
	} else {
		slog.Info("Database connection closed gracefully")
	}

	if err := a.tracerShutdown(ctx); err != nil {
		slog.Error("Tracer shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
