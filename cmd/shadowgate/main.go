package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shadowgate/internal/middleware"
	"github.com/noah-isme/shadowgate/internal/service"
	"github.com/noah-isme/shadowgate/pkg/config"
	"github.com/noah-isme/shadowgate/pkg/events"
	"github.com/noah-isme/shadowgate/pkg/jobs"
	"github.com/noah-isme/shadowgate/pkg/logger"
	reqidmiddleware "github.com/noah-isme/shadowgate/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	rules, err := service.NewRulesetBuilder(cfg.Shadow).Finalize()
	if err != nil {
		logr.Sugar().Fatalw("invalid shadow ruleset", "error", err)
	}

	state := service.NewRuntimeState(rules)
	metrics := service.NewMetricsService()
	bus := events.NewBus()

	sampler := service.NewSamplerService(state, metrics, logr)
	scrubber := service.NewScrubberService(state)
	client := service.NewShadowClient(state, metrics, logr)
	differ := service.NewDifferService(state)
	reporter := service.NewReporterService(state, bus, metrics, logr)
	pipeline := service.NewPipelineService(scrubber, client, differ, reporter)

	if cfg.Sink.Enabled {
		sink, err := service.NewRedisSink(cfg.Redis, cfg.Sink.Channel, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis sink", "error", err)
		}
		defer sink.Close() //nolint:errcheck
		sink.Attach(bus)
	}

	queue := jobs.NewQueue("shadow", func(ctx context.Context, job jobs.Job) error {
		capture, ok := job.Payload.(service.Capture)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		pipeline.Process(ctx, capture)
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		Logger:     logr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Shadow(sampler, queue, metrics, logr))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Demo endpoint mirrored to the shadow target when sampling accepts.
	r.Any("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "shadow_enabled", rules.Enabled())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
