package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/rooms"
	"chat-realtime/internal/router"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const serviceName = "chat-realtime"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.chat-realtime", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	registry := rooms.NewRegistry()
	hub := ws.NewHub(registry)
	messageRouter := router.New(registry, hub, messageRepo)
	session := ws.NewSessionHandler(hub, registry, userRepo, messageRouter, publisher)

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	healthHandler := handlers.NewHealthHandler(database)
	engine.GET("/healthz", healthHandler.Liveness)
	engine.GET("/readyz", healthHandler.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/ws", session.Handle)

	handlers.RegisterDebugRoutes(engine, auditEmitter, registry, hub, cfg.DebugRoutes)

	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
