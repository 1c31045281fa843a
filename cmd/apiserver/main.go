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

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"tripmate/internal/config"
	"tripmate/internal/handlers/apiserver"
	appKafka "tripmate/internal/kafka"
	kafkaHandlers "tripmate/internal/kafka/handlers"
	"tripmate/internal/middleware"
	appRedis "tripmate/internal/redis"
	"tripmate/internal/services"
	"tripmate/internal/storage"
	ws "tripmate/internal/websocket"
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

	// 4. 初始化 TokenBlacklist 服务
	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)

	// 5. 初始化 Repositories 与事务管理器
	userRepo := storage.NewGormUserRepository(db)
	followRepo := storage.NewGormFollowRepository(db)
	matchRepo := storage.NewGormMatchRepository(db)
	tripRepo := storage.NewGormTripRepository(db)
	tripRequestRepo := storage.NewGormTripRequestRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	engagementRepo := storage.NewGormEngagementRepository(db)
	txManager := storage.NewGormTransactionManager(db)

	// 6. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 7. 初始化 Services
	engagementService := services.NewEngagementService(engagementRepo, kfkProducer, cfg.Kafka)
	followService := services.NewFollowService(txManager, followRepo, userRepo, convoRepo, engagementService)
	matchService := services.NewMatchService(txManager, matchRepo, followRepo, userRepo, convoRepo, engagementService, cfg.Social)
	tripService := services.NewTripMembershipService(txManager, tripRepo, tripRequestRepo, userRepo, engagementService)
	conversationService := services.NewConversationService(txManager, convoRepo, followRepo, userRepo)
	notificationService := services.NewNotificationService(userRepo, followRepo, matchRepo, tripRequestRepo, engagementRepo)

	// 8. 初始化 WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	// 9. 初始化 Handlers
	followHandler := apiserver.NewFollowHandler(followService)
	matchHandler := apiserver.NewMatchHandler(matchService)
	tripHandler := apiserver.NewTripMembershipHandler(tripService)
	convoHandler := apiserver.NewConversationHandler(conversationService)
	notificationHandler := apiserver.NewNotificationHandler(notificationService)
	wsHandler := apiserver.NewWebSocketHandler(hub, tokenBlacklistService, cfg)

	// 10. 设置 HTTP 路由
	r := mux.NewRouter()

	// 创建 AuthMiddleware 实例
	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklistService)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	// 关注路由
	followRequestRouter := apiRouter.PathPrefix("/follow-requests").Subrouter()
	followRequestRouter.HandleFunc("", followHandler.SendRequestHandler).Methods(http.MethodPost)
	followRequestRouter.HandleFunc("/pending", followHandler.ListPendingHandler).Methods(http.MethodGet)
	followRequestRouter.HandleFunc("/{followerID:[0-9]+}/accept", followHandler.AcceptHandler).Methods(http.MethodPost)
	followRequestRouter.HandleFunc("/{followerID:[0-9]+}/reject", followHandler.RejectHandler).Methods(http.MethodPost)
	followRequestRouter.HandleFunc("/{targetID:[0-9]+}", followHandler.CancelHandler).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/follows/{targetID:[0-9]+}", followHandler.UnfollowHandler).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/follows/{targetID:[0-9]+}/dismiss", followHandler.DismissAcceptedHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/followers", followHandler.ListFollowersHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/following", followHandler.ListFollowingHandler).Methods(http.MethodGet)

	// 配对路由
	apiRouter.HandleFunc("/matches", matchHandler.CreateOrAdvanceHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/matches", matchHandler.ListAcceptedHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/matches/reject", matchHandler.RejectHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/matches/candidates", matchHandler.CandidatesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/matches/{matchID:[0-9]+}/dismiss", matchHandler.DismissHandler).Methods(http.MethodPost)

	// 行程加入路由
	apiRouter.HandleFunc("/trips/{tripID:[0-9]+}/requests", tripHandler.RequestJoinHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/trips/{tripID:[0-9]+}/requests", tripHandler.ListForTripHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/trips/{tripID:[0-9]+}/leave", tripHandler.LeaveHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/trip-requests/outgoing", tripHandler.ListOutgoingHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/trip-requests/{requestID:[0-9]+}/resolve", tripHandler.ResolveRequestHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/trip-requests/{requestID:[0-9]+}/dismiss", tripHandler.DismissResolvedHandler).Methods(http.MethodPost)

	// 会话路由
	apiRouter.HandleFunc("/conversations", convoHandler.ListConversationsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/conversations/private", convoHandler.GetOrCreateHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/conversations/{conversationID:[0-9]+}/messages", convoHandler.GetMessagesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/conversations/{conversationID:[0-9]+}/read", convoHandler.MarkReadHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/messages", convoHandler.SendMessageHandler).Methods(http.MethodPost)

	// 通知路由
	apiRouter.HandleFunc("/notifications", notificationHandler.FeedHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/unread-count", notificationHandler.UnreadCountHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/check", notificationHandler.MarkReadHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/notifications/verification/dismiss", notificationHandler.DismissVerificationHandler).Methods(http.MethodPost)

	// 公开路由 (不强制认证)
	// 关注状态对匿名查看者开放（恒得 not_following），携带有效令牌时
	// 则按查看者视角推导 self/following/pending 等状态。
	optionalAuthMW := middleware.OptionalAuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklistService)
	r.Handle("/follows/status/{userID:[0-9]+}",
		optionalAuthMW(http.HandlerFunc(followHandler.StatusHandler))).Methods(http.MethodGet)

	// WebSocket 通知推送 (令牌经查询参数认证)
	r.HandleFunc("/ws/notifications", wsHandler.ServeWS)

	// 11. 初始化并启动 Kafka 消费者 (用于处理互动事件)
	engagementConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建互动事件 Kafka 消费者: %v", err)
	}
	defer engagementConsumer.Close()

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	consumerLogic := kafkaHandlers.NewEngagementConsumerLogic(engagementService, hub)
	go func() {
		topics := []string{cfg.Kafka.EngagementTopic}
		log.Printf("Kafka 互动事件消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.EngagementTopic, cfg.Kafka.ConsumerGroup)
		err := engagementConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, consumerLogic.HandleEngagementEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 互动事件消费者错误: %v", err)
		}
		log.Println("Kafka 互动事件消费者 goroutine 已停止。")
	}()

	// 12. 启动 HTTP 服务器并实现优雅关闭
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

	// 将主路由器 r 包装在 CORS 中间件中
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	cancelConsumers() // Signal Kafka consumer to stop

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
