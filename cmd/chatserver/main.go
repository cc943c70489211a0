package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moodlink/internal/config"
	"moodlink/internal/handlers/chatserver"
	appKafka "moodlink/internal/kafka"
	kafkahandlers "moodlink/internal/kafka/handlers"
	appRedis "moodlink/internal/redis"
	"moodlink/internal/services"
	"moodlink/internal/storage"
	"moodlink/internal/websocket"

	redisDriver "github.com/redis/go-redis/v9"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("通知服务器配置加载成功。")

	// 2. 初始化数据库连接 (徽标轮询需要读取待处理计数)
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("通知服务器数据库连接成功。")

	// 3. 初始化 Redis Client
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)
	pendingCountCache := appRedis.NewRedisPendingCountCache(redisClient, time.Duration(cfg.Poller.CountTTLSeconds)*time.Second)

	// 4. 初始化 Repositories 与 Services
	// 通知服务器只读连接数据，不发布事件，producer 传 nil。
	userRepo := storage.NewGormUserRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	connectionService := services.NewConnectionService(userRepo, connRepo, pendingCountCache, nil, cfg.Kafka)

	// 5. 初始化 WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()
	log.Println("WebSocket Hub 已启动。")

	// 6. 初始化 WebSocket Handler
	wsHandler := chatserver.NewWebSocketHandler(hub, connectionService, userRepo, tokenBlacklistService, cfg)

	// 7. 初始化通知 Kafka 消费者，消费结果直接投递给 Hub
	notificationConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建通知 Kafka 消费者: %v", err)
	}
	defer notificationConsumer.Close()

	consumerLogic := kafkahandlers.NewNotificationConsumerLogic(hub)

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.NotificationsTopic}
		log.Printf("Kafka 通知消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.NotificationsTopic, cfg.Kafka.ConsumerGroup)
		if err := notificationConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, consumerLogic.HandleNotification); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 通知消费者错误: %v", err)
		}
		log.Println("Kafka 通知消费者 goroutine 已停止。")
	}()

	// 8. 配置 HTTP 服务器路由
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	// 9. 启动 HTTP 服务器
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	// 不设置 Read/WriteTimeout：它们会掐断长连接，WebSocket 的超时
	// 由 client 的 ping/pong 机制管理。
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("通知服务器启动于 %s, WebSocket 路径: %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("通知服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("通知服务器准备关闭...")

	cancelConsumers() // 通知 Kafka 消费者停止
	log.Println("正在等待 Kafka 消费者停止...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("通知服务器关闭失败: %v", err)
	}
	log.Println("通知服务器已优雅关闭。")
}
