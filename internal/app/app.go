package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/order-lifecycle/internal/health"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/metrics"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/service/order"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Run поднимает REST API, gRPC health и HTTP-метрики и блокируется до отмены ctx
// или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close order store")
		}
	}()

	brokers := cfg.Brokers()
	producer, err := initKafkaProducer(brokers, logger)
	if err != nil {
		producer = nil
	}
	defer closeKafka(producer, logger)

	manager := newOrderManager(cfg, deps.store, producer, metrics.NewOrderMetrics(), logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewCheckFunc("storage", deps.ping))
	if producer != nil {
		healthHandler.RegisterOptionalChecker("kafka", healthcheck.NewCheckFunc("kafka", func(ctx context.Context) error {
			return kafka.CheckBrokers(ctx, brokers)
		}))
	}

	apiHandler := httpapi.NewHandler(manager, logger.WithField("layer", "http"))

	errCh := make(chan error, 3)

	apiSrv, err := startHTTPServer("api", cfg.HTTPAddr, apiHandler.Router(), logger, errCh)
	if err != nil {
		return err
	}
	metricsSrv, err := startHTTPServer("metrics", cfg.MetricsAddr, newMetricsMux(healthHandler), logger, errCh)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		return err
	}

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed, stopping")
		runErr = err
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	shutdownManager(manager, cfg.drainTimeout(), logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// newOrderManager собирает менеджер заказов; без producer события не публикуются.
func newOrderManager(cfg Config, store domain.OrderStore, producer *kafka.Producer, recorder order.Recorder, logger *log.Entry) *order.Manager {
	var publisher domain.EventPublisher
	if producer != nil {
		publisher = kafka.NewOrderEventPublisher(producer, cfg.OrderEventsTopic)
	}

	var transitions domain.TransitionPolicy = domain.PermissiveTransitions{}
	if cfg.StrictTransitions {
		transitions = domain.StrictTransitions{}
	}

	return order.NewManager(store, publisher,
		order.WithLogger(logger.WithField("layer", "service")),
		order.WithPublishTimeout(cfg.PublishTimeout),
		order.WithStoreTimeout(cfg.StoreTimeout),
		order.WithTransitions(transitions),
		order.WithMetrics(recorder),
	)
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// newMetricsMux собирает служебные эндпоинты: метрики и пробы.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

// startHTTPServer занимает адрес синхронно, чтобы ошибка порта вернулась сразу.
func startHTTPServer(name, addr string, handler http.Handler, logger *log.Entry, errCh chan<- error) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", name, addr, err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.WithField("server", name).Infof("HTTP сервер слушает %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownManager ждёт фоновые публикации, но не дольше timeout.
func shutdownManager(manager *order.Manager, timeout time.Duration, logger *log.Entry) {
	if manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("pending order events were not published before shutdown")
	}
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}
