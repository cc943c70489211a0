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
	"moodlink/internal/handlers/apiserver"
	appKafka "moodlink/internal/kafka"
	"moodlink/internal/middleware"
	appRedis "moodlink/internal/redis"
	"moodlink/internal/services"
	"moodlink/internal/storage"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	// (可选) 表结构迁移
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：API 服务器数据库表迁移可能失败: %v", err)
	} else {
		log.Println("API 服务器数据库表迁移成功 (如果执行)。")
	}

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

	// 4. 初始化 TokenBlacklist 与待处理计数缓存
	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)
	pendingCountCache := appRedis.NewRedisPendingCountCache(redisClient, time.Duration(cfg.Poller.CountTTLSeconds)*time.Second)

	// 5. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	msgRepo := storage.NewGormDirectMessageRepository(db)

	// 6. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 7. 初始化 Services
	connectionService := services.NewConnectionService(userRepo, connRepo, pendingCountCache, kfkProducer, cfg.Kafka)
	discoveryService := services.NewDiscoveryService(userRepo, connRepo)
	messageService := services.NewDirectMessageService(msgRepo, connRepo, kfkProducer, cfg.Kafka)

	// 8. 初始化 Handlers
	connectionHandler := apiserver.NewConnectionHandler(connectionService)
	discoveryHandler := apiserver.NewDiscoveryHandler(discoveryService)
	messageHandler := apiserver.NewMessageHandler(messageService)

	// 9. 设置 HTTP 路由
	r := mux.NewRouter()

	// 创建 AuthMiddleware 实例
	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklistService)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	// 发现路由
	apiRouter.HandleFunc("/discover", discoveryHandler.DiscoverHandler).Methods(http.MethodGet)

	// 连接路由
	connectionRouter := apiRouter.PathPrefix("/connections").Subrouter()
	connectionRouter.HandleFunc("/request", connectionHandler.RequestConnectionHandler).Methods(http.MethodPost)
	connectionRouter.HandleFunc("/pending", connectionHandler.ListPendingConnectionsHandler).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/pending/count", connectionHandler.CountPendingConnectionsHandler).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/accepted", connectionHandler.ListAcceptedConnectionsHandler).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/{connectionID:[0-9]+}/accept", connectionHandler.AcceptConnectionHandler).Methods(http.MethodPut)

	// 私信路由
	messageRouter := apiRouter.PathPrefix("/messages").Subrouter()
	messageRouter.HandleFunc("", messageHandler.SendMessageHandler).Methods(http.MethodPost)
	messageRouter.HandleFunc("/{counterpartID:[0-9]+}", messageHandler.GetHistoryHandler).Methods(http.MethodGet)
	messageRouter.HandleFunc("/{counterpartID:[0-9]+}", messageHandler.ClearHistoryHandler).Methods(http.MethodDelete)

	// 10. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	// 定义 CORS 选项，从配置中读取
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
