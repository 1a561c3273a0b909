package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/brandchat/internal/api"
	"github.com/npezzotti/brandchat/internal/cache"
	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/config"
	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger := log.New(os.Stderr, "[brandchat] ", log.LstdFlags)

	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if err != nil {
		logger.Fatal("config:", err)
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	dbConn, err := database.NewPgBrandChatRepository(openCtx, cfg.DatabaseDSN)
	cancelOpen()
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if cfg.Migrate {
		logger.Println("applying migrations...")
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	prometheus.MustRegister(collectors.NewDBStatsCollector(dbConn.DB(), "brandchat"))

	var revoked cache.RevocationStore
	if cfg.RedisURL != "" {
		redisCtx, cancelRedis := context.WithTimeout(context.Background(), 5*time.Second)
		revoked, err = cache.NewRedisRevocationStore(redisCtx, cfg.RedisURL)
		cancelRedis()
		if err != nil {
			logger.Fatal("redis:", err)
		}
	} else {
		logger.Println("no redis url configured, keeping revoked sessions in memory")
		revoked = cache.NewMemoryRevocationStore()
	}
	defer revoked.Close()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatService := chat.NewService(logger, dbConn, statsUpdater, chat.Options{
		RequireParticipant: cfg.RequireParticipant,
		DefaultPageSize:    cfg.DefaultPageSize,
		MaxPageSize:        cfg.MaxPageSize,
	})

	srv := api.NewBrandChatApp(mux, logger, chatService, dbConn, statsUpdater, revoked, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
