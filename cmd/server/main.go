package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"openlens/internal/analysis"
	"openlens/internal/api"
	"openlens/internal/config"
	"openlens/internal/extractor"
	"openlens/internal/llm"
	redisdb "openlens/internal/redis"
	"openlens/internal/session"
	"openlens/internal/sources"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		log.Printf("[Main] WARNING: no LLM api key configured, summaries will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Memory.Backend == config.MemoryBackendRedis {
		rdb, err = redisdb.Connect(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Redis error: %v\n", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	sessions := session.NewManagerFromConfig(cfg, rdb)
	go sessions.RunSweeper(ctx, time.Minute)

	ex := extractor.NewFromConfig(cfg.Extractor)
	sum := llm.NewClientFromConfig(cfg.LLM)
	log.Printf("[Main] Extraction policy %s, model %s, memory backend %s",
		ex.Policy(), sum.Model(), cfg.Memory.Backend)

	r := api.SetupRouter(cfg, api.Deps{
		Sessions: sessions,
		Analyzer: analysis.NewAnalyzer(ex, sum),
		Explorer: sources.NewExplorerFromConfig(cfg.Sources, cfg.Extractor.UserAgent),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] Shutdown error: %v", err)
		}
	}()

	fmt.Printf("Starting server on %s%s\n", addr, cfg.Server.Subpath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[Main] Stopped")
}
