package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pranab56/TradeLog-sub000/internal/api"
	"github.com/pranab56/TradeLog-sub000/internal/cache"
	"github.com/pranab56/TradeLog-sub000/internal/config"
	"github.com/pranab56/TradeLog-sub000/internal/events"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/internal/repository"
	"github.com/pranab56/TradeLog-sub000/internal/service"
	"github.com/pranab56/TradeLog-sub000/internal/ws"
	"github.com/pranab56/TradeLog-sub000/pkg/logger"
	"github.com/pranab56/TradeLog-sub000/pkg/metrics"
)

func main() {
	cfg, err := config.Load("./config/config.yaml")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.App.Env == "development")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Infof("starting chat core (env=%s)", cfg.App.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Mongo
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		log.Fatalf("mongo ping: %v", err)
	}
	db := mc.Database(cfg.Mongo.Database)
	msgCol := db.Collection(cfg.Mongo.MessagesCollection)
	convCol := db.Collection(cfg.Mongo.ConversationsCollection)
	reqCol := db.Collection(cfg.Mongo.RequestsCollection)
	if err := repository.EnsureIndexes(ctx, msgCol, convCol, reqCol); err != nil {
		log.Fatalf("ensure indexes: %v", err)
	}

	// Redis
	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	mirror := cache.NewPresenceMirror(rdb, cfg.Redis.Prefix)
	recent := cache.NewRecentMessages(rdb, cfg.Redis.Prefix)

	// Kafka (optional audit stream)
	var bus service.EventSink
	var producer *events.Producer
	if cfg.Kafka.Enabled {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		bus = producer
	}

	router := realtime.NewRouter(log, mirror, realtime.WithTypingTTL(cfg.TypingTTL))

	repos := service.Deps{
		Messages:      repository.NewMongoMessages(msgCol),
		Conversations: repository.NewMongoConversations(convCol),
		Requests:      repository.NewMongoRequests(reqCol),
		Router:        router,
		Bus:           bus,
		Recent:        recent,
		Log:           log,
	}
	svc := service.New(repos)

	gw := ws.NewGateway(router, svc, log)
	sock := ws.NewServer(router, gw, cfg, log)

	srv := api.NewServer(svc, router, mirror, sock, rdb, cfg, log)
	app := srv.App()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// metrics on a side listener, kept off the public port
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.MetricsPort),
		Handler: mux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	shutCtx, cancel2 := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel2()
	_ = app.Shutdown()
	_ = metricsSrv.Shutdown(shutCtx)
	router.Close()
	if producer != nil {
		_ = producer.Close()
	}
	_ = mc.Disconnect(shutCtx)
	_ = rdb.Close()
	log.Info("shutdown complete")
}
