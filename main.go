package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"hotelstock/server/internal/api"
	"hotelstock/server/internal/config"
	"hotelstock/server/internal/database"
	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"
	"hotelstock/server/internal/utils"
)

func main() {
	// .env необязателен: в production переменные задаются окружением
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := config.SetupLogger(cfg)
	if envErr != nil {
		logger.Info(".env файл не найден, используем переменные окружения системы")
	}
	logger.WithField("database_url", maskDatabaseURL(cfg.DatabaseURL)).Info("Конфигурация загружена")

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("PostgreSQL недоступен")
	}
	defer database.ClosePostgres(db)

	if cfg.AutoMigrate {
		if err := models.AutoMigrate(db); err != nil {
			logger.WithError(err).Fatal("Миграция не выполнена")
		}
		logger.Info("Миграции выполнены")
	}

	// Redis необязателен: без него нет кэша сводок и распределенной блокировки закрытия
	var redisUtil *utils.RedisClient
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	if err != nil {
		logger.WithError(err).Warn("Redis недоступен, продолжаем без кэша и блокировок")
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
		defer database.CloseRedis(redisClient)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Рассылка событий: WebSocket всегда, Kafka при наличии брокеров
	hub := api.NewStockHub()
	go hub.Run(ctx)

	publishers := []services.EventPublisher{hub}
	var producer *api.KafkaEventProducer
	if cfg.KafkaBrokers != "" {
		producer = api.NewKafkaEventProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		defer producer.Close()
		publishers = append(publishers, producer)
	} else {
		logger.Warn("KAFKA_BROKERS не задан, события уходят только в WebSocket")
	}
	publisher := services.NewMultiPublisher(publishers...)

	var summaryCache *services.SummaryCacheStore
	if redisUtil != nil {
		summaryCache = services.NewSummaryCacheStore(redisUtil, cfg.SummaryCacheTTL)
	}

	snapshotService := services.NewSnapshotService(db)
	itemService := services.NewStockItemService(db)

	periodService := services.NewPeriodService(db, snapshotService)
	periodService.SetPublisher(publisher)
	periodService.SetSummaryCache(summaryCache)
	if redisUtil != nil {
		periodService.SetLocker(redisUtil.Locker(), cfg.CloseLockTTL)
	}

	stocktakeService := services.NewStocktakeService(db, snapshotService)
	stocktakeService.SetPublisher(publisher)
	stocktakeService.SetSummaryCache(summaryCache)

	movementService := services.NewMovementService(db, snapshotService, stocktakeService)
	movementService.SetPublisher(publisher)

	mergeService := services.NewConsumptionMergeService(db, services.NewGormConsumptionRepository(db), snapshotService, stocktakeService)
	mergeService.SetPublisher(publisher)

	var consumer *api.ConsumptionConsumer
	if cfg.KafkaBrokers != "" {
		consumer = api.NewConsumptionConsumer(cfg.KafkaBrokers, cfg.KafkaConsumptionTopic, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert, mergeService, itemService)
		consumer.Start()
	}

	// gRPC health: статус следует за Postgres и Redis
	checks := map[string]api.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisUtil != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisUtil.Client().Ping(ctx).Err()
		}
	}
	healthServer := api.NewHealthServer(checks, 15*time.Second)
	go func() {
		if err := healthServer.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			logger.WithError(err).Error("gRPC health сервер остановлен с ошибкой")
		}
	}()

	if err := api.RegisterValidators(); err != nil {
		logger.WithError(err).Fatal("Не удалось зарегистрировать валидаторы")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"service":    "Hotel Stock Server",
			"ws_clients": hub.GetClientsCount(),
		})
	})

	// Логирование запросов
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("HTTP запрос")
	})

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	// WebSocket событий склада (токен в query)
	r.GET("/ws/stock", api.ServeStockWS(hub, cfg.JWTSecret))

	itemController := api.NewItemController(itemService)
	periodController := api.NewPeriodController(periodService, snapshotService)
	stocktakeController := api.NewStocktakeController(stocktakeService, periodService, mergeService)
	movementController := api.NewMovementController(movementService, periodService)

	apiGroup := r.Group("/api/v1", api.JWTMiddleware(cfg.JWTSecret))
	apiGroup.GET("/categories", itemController.ListCategories)

	hotelGroup := apiGroup.Group("/hotels/:hotel_id", api.HotelScope())
	{
		hotelGroup.GET("/items", itemController.ListItems)
		hotelGroup.POST("/items", api.RequireManager(), itemController.CreateItem)
		hotelGroup.GET("/items/:id", itemController.GetItem)
		hotelGroup.PATCH("/items/:id", api.RequireManager(), itemController.UpdateItem)

		hotelGroup.GET("/periods", periodController.ListPeriods)
		hotelGroup.POST("/periods", api.RequireManager(), periodController.CreatePeriod)
		hotelGroup.GET("/periods/:id", periodController.GetPeriod)
		hotelGroup.GET("/periods/:id/snapshots", periodController.ListSnapshots)
		hotelGroup.GET("/periods/:id/opening-balance", periodController.OpeningBalance)
		hotelGroup.POST("/periods/:id/close", api.RequireManager(), periodController.ClosePeriod)
		hotelGroup.POST("/periods/:id/reopen", periodController.ReopenPeriod) // Право проверяется по выданному разрешению
		hotelGroup.PUT("/periods/:id/manual-totals", api.RequireManager(), periodController.SetManualTotals)
		hotelGroup.GET("/periods/:id/reopen-grants", periodController.ListReopenGrants)
		hotelGroup.POST("/periods/:id/reopen-grants", api.RequireManager(), periodController.GrantReopen)
		hotelGroup.DELETE("/periods/:id/reopen-grants/:staff_id", api.RequireManager(), periodController.RevokeReopen)

		hotelGroup.GET("/stocktakes", stocktakeController.ListStocktakes)
		hotelGroup.POST("/stocktakes", api.RequireManager(), stocktakeController.CreateStocktake)
		hotelGroup.GET("/stocktakes/:id", stocktakeController.GetStocktake)
		hotelGroup.POST("/stocktakes/:id/populate", stocktakeController.Populate)
		hotelGroup.POST("/stocktakes/:id/approve", api.RequireManager(), stocktakeController.Approve)
		hotelGroup.GET("/stocktakes/:id/summary", stocktakeController.Summary)
		hotelGroup.GET("/stocktakes/:id/categories", stocktakeController.Categories)
		hotelGroup.GET("/stocktakes/:id/lines", stocktakeController.GetLines)
		hotelGroup.POST("/stocktakes/:id/lines", stocktakeController.AddLine)
		hotelGroup.POST("/stocktakes/:id/merge", stocktakeController.Merge)
		hotelGroup.POST("/stocktakes/:id/merge-all", stocktakeController.MergeAll)
		hotelGroup.GET("/stocktakes/:id/pending-consumption", stocktakeController.PendingConsumption)
		hotelGroup.GET("/stocktakes/:id/ledger-check", stocktakeController.LedgerCheck)

		hotelGroup.PUT("/stocktake-lines/:id/count", stocktakeController.RecordCount)
		hotelGroup.PUT("/stocktake-lines/:id/sales", stocktakeController.SetSales)
		hotelGroup.PUT("/stocktake-lines/:id/manual-values", api.RequireManager(), stocktakeController.SetManualValues)

		hotelGroup.GET("/movements", movementController.History)
		hotelGroup.POST("/movements", movementController.RecordMovement)
		hotelGroup.GET("/movements/totals", movementController.Totals)
		hotelGroup.POST("/movements/:id/reverse", api.RequireManager(), movementController.Reverse)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("port", cfg.ServerPort).Info("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP сервер остановлен с ошибкой")
		}
	}()

	<-ctx.Done()
	logger.Info("Получен сигнал остановки")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP сервер остановлен принудительно")
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("Ошибка остановки Kafka consumer")
		}
	}
}

// maskDatabaseURL скрывает учетные данные в строке подключения
func maskDatabaseURL(databaseURL string) string {
	idx := strings.Index(databaseURL, "@")
	schemeIdx := strings.Index(databaseURL, "://")
	if idx > 0 && schemeIdx > 0 && schemeIdx < idx {
		return databaseURL[:schemeIdx+3] + "***@" + databaseURL[idx+1:]
	}
	return databaseURL
}
