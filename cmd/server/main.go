// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/rmbg-service/internal/cache"
	"github.com/SyedDaiam9101/rmbg-service/internal/config"
	"github.com/SyedDaiam9101/rmbg-service/internal/handler"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
	"github.com/SyedDaiam9101/rmbg-service/internal/logging"
	"github.com/SyedDaiam9101/rmbg-service/internal/metrics"
	"github.com/SyedDaiam9101/rmbg-service/internal/middleware"
	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
)

const serviceName = "rmbg-service"

func main() {
	// Parse command-line flags
	port := flag.Int("port", 0, "HTTP API port (default: 8000)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC health port (default: 50051)")
	modelPath := flag.String("model", "", "Path to ONNX model file (default: models/model.onnx)")
	redisAddr := flag.String("redis", "", "Redis address; empty disables the result cache")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use mock inference engine (for testing)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override with flags if provided
	if *port > 0 {
		cfg.Port = *port
	}
	if *grpcPort > 0 {
		cfg.GRPCPort = *grpcPort
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *metricsPort > 0 {
		cfg.MetricsPort = *metricsPort
	}
	if *useMock {
		cfg.UseMockInference = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logger := logging.L()

	width, height := cfg.InputSize()
	logger.Info("starting "+cfg.AppName,
		zap.String("version", cfg.AppVersion),
		zap.String("mode", cfg.Mode),
		zap.Int("port", cfg.Port),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.String("model", cfg.ModelPath),
		zap.Int("input_width", width),
		zap.Int("input_height", height),
		zap.String("redis", cfg.RedisAddr),
		zap.Bool("otel", cfg.OTELEnabled))

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer(cfg.OTELEndpoint, cfg.AppVersion)
		if err != nil {
			logger.Warn("failed to initialize tracer", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	// Load inference engine; a load failure is fatal before serving
	var engine inference.Engine
	if cfg.UseMockInference {
		logger.Info("using mock inference engine")
		engine = inference.NewMockWithSize(width, height)
	} else {
		path := cfg.AbsModelPath()
		logger.Info("loading ONNX model", zap.String("path", path))
		engine, err = inference.Load(path, width, height, inference.Options{SharedLibraryPath: cfg.ORTLibraryPath})
		if err != nil {
			logger.Fatal("failed to load ONNX model", zap.Error(err))
		}
		info := engine.Describe()
		logger.Info("ONNX model loaded", zap.String("name", info.ModelName), zap.String("input", engine.InputName()))
	}
	defer engine.Close()

	pipeline, err := segmentation.New(engine,
		segmentation.WithLogger(logger.Named("segmentation")),
		segmentation.WithObserver(metrics.RecordSegmentation),
	)
	if err != nil {
		logger.Fatal("failed to create pipeline", zap.Error(err))
	}

	// Initialize Redis cache (optional)
	var cacheClient *cache.Cache
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cacheClient, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		cancel()
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
			logger.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
		}
	}

	// Create gRPC health server
	healthServer := health.NewServer()

	// Start HTTP server for metrics and health checks
	metricsServer := startMetricsServer(cfg.MetricsPort, healthServer, logger)

	// Build interceptor chain
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	}
	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", grpcAddr), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// API server
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.New(pipeline, cacheClient, handler.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxImageWidth:  cfg.MaxImageWidth,
		MaxImageHeight: cfg.MaxImageHeight,
		MaxImagePixels: cfg.MaxImagePixels,
		AppName:        cfg.AppName,
		AppVersion:     cfg.AppVersion,
		RMBGVersion:    cfg.RMBGVersion,
	}, logger.Named("http"))

	apiAddr := fmt.Sprintf(":%d", cfg.Port)
	apiServer := &http.Server{
		Addr:              apiAddr,
		Handler:           handler.NewRouter(h, logger.Named("access")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set health status to serving
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING) // Overall health
	metrics.SetHealthy()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		sig := <-sigChan
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		// Give time for load balancers to detect unhealthy status
		time.Sleep(5 * time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Error("API server shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown", zap.Error(err))
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(ctx); err != nil {
				logger.Error("tracer shutdown", zap.Error(err))
			}
		}
	}()

	logger.Info("API server listening", zap.String("addr", apiAddr))
	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to serve", zap.Error(err))
	}

	<-done
	logger.Info("server shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithConfigFile(path)
	}
	return config.Load()
}

func startMetricsServer(port int, healthServer *health.Server, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthCheck(healthServer, "OK", "Service Unavailable"))
	mux.HandleFunc("/readyz", healthCheck(healthServer, "Ready", "Not Ready"))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return server
}

// healthCheck answers from the overall status of the gRPC health server
func healthCheck(healthServer *health.Server, ok, unavailable string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(unavailable))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ok))
	}
}

func initTracer(endpoint, version string) (func(context.Context) error, error) {
	// OTLP export needs a collector; spans go to stdout and the endpoint is only reported
	if endpoint != "" {
		logging.L().Info("using stdout trace exporter", zap.String("otlp_endpoint", endpoint))
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
