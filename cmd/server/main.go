package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskbazaar-backend/internal/config"
	"github.com/ignatzorin/taskbazaar-backend/internal/db"
	"github.com/ignatzorin/taskbazaar-backend/internal/email"
	"github.com/ignatzorin/taskbazaar-backend/internal/geo"
	httpHandlers "github.com/ignatzorin/taskbazaar-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/taskbazaar-backend/internal/http/router"
	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/payment"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
	"github.com/ignatzorin/taskbazaar-backend/internal/service"
	"github.com/ignatzorin/taskbazaar-backend/internal/storage"
	"github.com/ignatzorin/taskbazaar-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	photoStorage, err := storage.NewPhotoStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Внешние коллабораторы.
	geocoder := geo.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeMinInterval)
	processor := payment.NewHTTPProcessor(cfg.PaymentAPIURL, cfg.PaymentAPIKey)
	smtpSender := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	chatRepo := repository.NewChatRepository(dbConn)
	outboxRepo := repository.NewOutboxRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(outboxRepo, smtpSender, 15*time.Second)
	chatService := service.NewChatService(chatRepo, taskRepo, userRepo)
	taskService := service.NewTaskService(taskRepo, userRepo, chatService, notificationService, processor, geocoder)
	paymentService := service.NewPaymentService(taskRepo, cfg.PaymentWebhookSecret)

	// Фоновый диспетчер email-уведомлений.
	go notificationService.Run(ctx)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	taskHandler := httpHandlers.NewTaskHandler(taskService, photoStorage)
	chatHandler := httpHandlers.NewChatHandler(chatService, hub)
	wsHandler := httpHandlers.NewWSHandler(hub, chatService, tokenManager)
	webhookHandler := httpHandlers.NewWebhookHandler(paymentService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, taskHandler, chatHandler, wsHandler, webhookHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
