package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-market/internal/bot"
	"task-market/internal/config"
	"task-market/internal/handlers"
	"task-market/internal/repository"
	"task-market/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	users := service.NewUserDirectory(userRepo)
	notifications := service.NewNotificationService(notificationRepo, cfg.NotifyQueueSize, cfg.NotifyMaxAttempts, cfg.NotifyClaimTTL)
	tasks := service.NewTaskLifecycle(taskRepo, users, notifications, cfg.ConflictRetries)
	reminders := service.NewReminderService(taskRepo)

	scheduler := service.NewSchedulerService(time.Local, 30*time.Second)
	if _, err := scheduler.Every(ctx, "redeliver notifications", cfg.NotifyRetryInterval, notifications.RedeliverPending); err != nil {
		log.Fatalf("schedule redelivery: %v", err)
	}

	if cfg.BotEnabled() {
		telegramBot, err := bot.New(cfg.TelegramToken, users, tasks, reminders, notifications)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
		notifications.AddSink(telegramBot)

		switch {
		case cfg.DigestAt != "":
			_, err = scheduler.Daily(ctx, "digest", cfg.DigestAt, telegramBot.SendDigests)
		case cfg.DigestInterval > 0:
			_, err = scheduler.Every(ctx, "digest", cfg.DigestInterval, telegramBot.SendDigests)
		}
		if err != nil {
			log.Fatalf("schedule digest: %v", err)
		}

		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("bot stopped with error: %v", err)
			}
		}()
	} else {
		log.Println("TELEGRAM_TOKEN is empty, running without the bot.")
	}

	go notifications.Run(ctx)

	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("Scheduler started with %d jobs.", scheduler.Entries())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewHandler(tasks, users, notifications).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}()

	log.Printf("Task market listening on %s.", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http: %v", err)
	}
	log.Println("Shutdown complete.")
}
