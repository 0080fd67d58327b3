package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rtckit/internal/infrastructure/monitoring"
	signalserver "rtckit/internal/infrastructure/signal"
	"rtckit/internal/infrastructure/repositories"
	"rtckit/pkg/config"
	"rtckit/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	peerRepo := repoFactory.CreatePeerRepository()
	collector := monitoring.NewCollector()

	wsOpts := signalserver.Options{
		PingInterval: cfg.Signal.PingInterval,
		PongTimeout:  cfg.Signal.PongTimeout,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsOpts.Burst = cfg.RateLimiting.WebSocket.Burst
		wsOpts.MaxMessageSizeBytes = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	wsServer := signalserver.NewWebSocketServer(peerRepo, collector, zapLogger, wsOpts)

	healthChecker := monitoring.NewHealthChecker()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthChecker.CheckAll(c.Request.Context()))
	})
	router.GET("/stats", gin.WrapF(wsServer.HealthCheck))
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: router,
	}

	go func() {
		log.Infow("starting signaling server", "address", cfg.Signal.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
}
