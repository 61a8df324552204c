package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"beatmapCollab/backend/config"
	"beatmapCollab/backend/internal/auth"
	"beatmapCollab/backend/internal/cache"
	"beatmapCollab/backend/internal/collab"
	"beatmapCollab/backend/internal/httpapi/handlers"
	"beatmapCollab/backend/internal/httpapi/middleware"
	"beatmapCollab/backend/internal/store"
	"beatmapCollab/backend/internal/ws"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.LoadCollab()
	if err != nil {
		glog.Fatalf("init config failed: %v", err)
	}
	if cfg.Running.NodeID == "" {
		cfg.Running.NodeID = uuid.NewString()
	}
	glog.Infof("collab node %s starting on :%d", cfg.Running.NodeID, cfg.Running.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 单机和集群共用 UniversalClient
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(ctx).Err(); err != nil {
		glog.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	snapshotStore := store.NewSnapshotStore(db, cfg.Room.KeepSnapshots)

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		glog.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	opt := collab.DefaultKafkaDispatcherOptions()
	kafkaDispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		collab.NewSemaphoreControl(opt.Workers),
		opt,
	)
	defer kafkaDispatcher.Close()

	svc := collab.NewInMemoryService(collab.ServiceOptions{
		Store:         snapshotStore,
		Events:        kafkaDispatcher,
		Strict:        cfg.Editor.Strict,
		StackLeniency: cfg.Editor.StackLeniency,
	})

	presenceCache := cache.NewRedisPresence(rdb)
	relay := cache.NewRedisRelay(rdb, cfg.Running.NodeID)
	hub := ws.NewHub(presenceCache, relay, svc)
	// 本地应用顺序即广播顺序
	svc.SetOnApplied(hub.Deliver)
	manager := ws.NewManager(hub, svc, collab.NewSemaphoreControl(cfg.Room.MaxSubmits))

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	g := r.Group("/collab")
	// 从 Authorization 或 ?token= 取 token，写入 userId/username
	g.Use(middleware.AuthMiddleware(auth.NewSigner(cfg.Auth.Secret)))
	g.GET("/ws", manager.WebSocketConnect)
	handlers.NewBeatmapHandler(svc, snapshotStore).Register(g)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		return svc.RunAutosave(egCtx, cfg.Room.SnapshotInterval)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("collab server stopped: %v", err)
	}
	glog.Info("collab server exited")
}
