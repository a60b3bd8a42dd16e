package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Warnf("неизвестный уровень логирования %q, используем info", cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Get()
	log.WithFields(log.Fields{
		"version":   build.Version,
		"commit":    build.Commit,
		"http_addr": cfg.HTTPAddr,
		"storage":   cfg.Storage,
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
