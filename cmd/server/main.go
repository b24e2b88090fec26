// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"jizhuanti-go/internal/config"
	"jizhuanti-go/internal/handler"
	"jizhuanti-go/internal/middleware"
	"jizhuanti-go/internal/model"
	"jizhuanti-go/internal/pipeline"
	"jizhuanti-go/internal/repository"
	"jizhuanti-go/internal/service"
	"jizhuanti-go/pkg/database"
	"jizhuanti-go/pkg/es"
	"jizhuanti-go/pkg/kafka"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/log"
	"jizhuanti-go/pkg/storage"
	"jizhuanti-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	config.InitChapters("./configs/chapters.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部组件
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.ConversationTurn{}, &model.ChapterSummary{}, &model.Biography{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	turnRepo := repository.NewTurnRepository(database.DB)
	summaryRepo := repository.NewSummaryRepository(database.DB)
	biographyRepo := repository.NewBiographyRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	llmClient := llm.NewClient(cfg.LLM)

	classifier := service.NewKeywordClassifier()
	coverageService := service.NewCoverageService(classifier, cfg.Interview.RecentAnswerWindow)
	questionService := service.NewQuestionService(llmClient, service.QuestionOptions{
		SimilarityThreshold: cfg.Interview.SimilarityThreshold,
		MinQuestionLength:   cfg.Interview.MinQuestionLength,
		MaxRetries:          cfg.Interview.MaxRetries,
		QuestionTimeout:     time.Duration(cfg.Interview.QuestionTimeoutSeconds) * time.Second,
	})
	summaryService := service.NewSummaryService(summaryRepo, llmClient, classifier, cfg.Interview.MaxSummaryItems)
	memoryService := service.NewMemoryService(es.ESClient, cfg.Elasticsearch.IndexName)
	interviewService := service.NewInterviewService(
		turnRepo, summaryRepo, sessionRepo,
		coverageService, questionService, summaryService,
		kafka.NewPublisher(), memoryService,
		config.Chapters, cfg.Interview.WelcomeBack,
	)
	biographyService := service.NewBiographyService(
		turnRepo, biographyRepo, llmClient,
		service.NewMinioExporter(cfg.MinIO.BucketName),
		service.BiographyOptions{
			Timeout:      time.Duration(cfg.Biography.TimeoutSeconds) * time.Second,
			Styles:       cfg.Biography.Styles,
			DefaultTitle: cfg.Biography.DefaultTitle,
		},
	)

	// 6. 初始化摘要提取管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(summaryService, config.Chapters, time.Duration(cfg.Interview.ExtractionTimeoutSeconds)*time.Second)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	interviewHandler := handler.NewInterviewHandler(interviewService)
	biographyHandler := handler.NewBiographyHandler(biographyService, jwtManager)
	memoryHandler := handler.NewMemoryHandler(memoryService)

	apiV1 := r.Group("/api/v1")
	{
		// 访谈路由组，需要认证
		interview := apiV1.Group("/interview")
		interview.Use(middleware.AuthMiddleware(jwtManager))
		{
			interview.POST("/question", interviewHandler.NextQuestion)
			interview.POST("/answer", interviewHandler.SaveAnswer)
		}

		// 传记路由组，需要认证
		biographies := apiV1.Group("/biographies")
		biographies.Use(middleware.AuthMiddleware(jwtManager))
		{
			biographies.POST("", biographyHandler.Synthesize)
			biographies.GET("", biographyHandler.List)
		}

		// 回忆检索路由组，需要认证
		memories := apiV1.Group("/memories")
		memories.Use(middleware.AuthMiddleware(jwtManager))
		{
			memories.GET("/search", memoryHandler.Search)
		}
	}
	// 传记流式合成 (WebSocket)，token 放在路径参数里
	r.GET("/ws/biographies/:token", biographyHandler.StreamSynthesize)

	// 9. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费循环会随进程退出自然结束，无需单独关闭。
	log.Info("服务已优雅关闭")
}
