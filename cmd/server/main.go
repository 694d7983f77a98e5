package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/chat"
	"github.com/hunkim/solar-search-vercel/internal/completion"
	"github.com/hunkim/solar-search-vercel/internal/conf"
	"github.com/hunkim/solar-search-vercel/internal/memory"
	"github.com/hunkim/solar-search-vercel/internal/orchestrator"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/pkg/workerpool"
	"github.com/hunkim/solar-search-vercel/internal/server"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := conf.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		Output:           cfg.Log.Output,
		File:             logger.FileConfig(cfg.Log.File),
		EnableCaller:     cfg.Log.EnableCaller,
		EnableStacktrace: cfg.Log.EnableStacktrace,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app, err := buildApp(cfg, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer app.pool.Shutdown()

	go func() {
		if err := app.server.Start(); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}

type app struct {
	server *server.Server
	pool   *workerpool.Pool
}

func buildApp(cfg *conf.Config, log *logger.Logger) (*app, error) {
	completer := completion.New(completion.Config{
		APIKey:         cfg.Completion.APIKey,
		BaseURL:        cfg.Completion.BaseURL,
		ConnectTimeout: cfg.Completion.ConnectTimeout,
		ReadTimeout:    cfg.Completion.ReadTimeout,
	}, log.Named("completion"))

	searcher := websearch.NewClient(websearch.Config{
		APIKey:     cfg.Search.APIKey,
		APIHost:    cfg.Search.APIHost,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    cfg.Search.Timeout,
	}, log.Named("websearch"))

	pool, err := workerpool.New(workerpool.DefaultConfig(), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	orc := orchestrator.New(completer, searcher, pool, log.Named("orchestrator"))

	store, err := buildStore(cfg, log)
	if err != nil {
		return nil, err
	}
	model := cfg.Completion.Model
	mem := memory.NewManager(store, memory.Options{
		MaxWords:      cfg.Memory.MaxWords,
		SummaryTarget: cfg.Memory.SummaryTarget,
		Summarize: func(ctx context.Context, prompt string) (string, error) {
			return completer.Complete(ctx, completion.Request{Prompt: prompt, Model: model})
		},
	}, log.Named("memory"))

	handler := chat.NewHandler(orc, mem, model, log.Named("chat"))
	srv := server.New(&cfg.Server, handler, log.Named("server"))

	return &app{server: srv, pool: pool}, nil
}

func buildStore(cfg *conf.Config, log *logger.Logger) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Memory.RedisAddr,
			Password: cfg.Memory.RedisPassword,
			DB:       cfg.Memory.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("using redis memory store", zap.String("addr", cfg.Memory.RedisAddr))
		return memory.NewRedisStore(client, cfg.Memory.RedisKey), nil
	case "file", "":
		log.Info("using file memory store", zap.String("path", cfg.Memory.Path))
		return memory.NewFileStore(cfg.Memory.Path), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}
