package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/chat"
	"github.com/hunkim/solar-search-vercel/internal/completion"
	"github.com/hunkim/solar-search-vercel/internal/conf"
	"github.com/hunkim/solar-search-vercel/internal/memory"
	"github.com/hunkim/solar-search-vercel/internal/orchestrator"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/pkg/workerpool"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// An interactive console chat loop. Each line of stdin is one message;
// answers stream to stdout as they are generated, followed by a references
// block when the answer was grounded in search.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := conf.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Log to file only so the streamed answer owns stdout.
	fileCfg := logger.FileConfig(cfg.Log.File)
	if fileCfg.Filename == "" {
		fileCfg.Filename = "logs/bot.log"
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "file",
		File:   fileCfg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	handler, pool, err := buildHandler(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer pool.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Ready. Type a message, or /clear, /stats, /export. Ctrl-D exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if reply, ok := handler.HandleCommand(ctx, text); ok {
			fmt.Println(reply)
			continue
		}

		cb := orchestrator.Callbacks{
			OnSearchStart: func() {
				fmt.Println("Searching the web...")
			},
			OnSearchQueriesGenerated: func(queries []string) {
				fmt.Printf("Queries: %s\n", strings.Join(queries, "; "))
			},
			OnSearchDone: func(sources []websearch.Result) {
				fmt.Printf("Found %d sources.\n", len(sources))
			},
			OnUpdate: func(chunk string) {
				fmt.Print(chunk)
			},
		}

		reply := handler.HandleMessage(ctx, text, cb)
		fmt.Println()
		if refs := chat.RenderReferences(reply.References); refs != "" {
			fmt.Println(refs)
		}
	}
	fmt.Println()
}

func buildHandler(cfg *conf.Config, log *logger.Logger) (*chat.Handler, *workerpool.Pool, error) {
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
		return nil, nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	orc := orchestrator.New(completer, searcher, pool, log.Named("orchestrator"))

	var store memory.Store
	switch cfg.Memory.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Memory.RedisAddr,
			Password: cfg.Memory.RedisPassword,
			DB:       cfg.Memory.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = memory.NewRedisStore(client, cfg.Memory.RedisKey)
	default:
		store = memory.NewFileStore(cfg.Memory.Path)
	}

	model := cfg.Completion.Model
	mem := memory.NewManager(store, memory.Options{
		MaxWords:      cfg.Memory.MaxWords,
		SummaryTarget: cfg.Memory.SummaryTarget,
		Summarize: func(ctx context.Context, prompt string) (string, error) {
			return completer.Complete(ctx, completion.Request{Prompt: prompt, Model: model})
		},
	}, log.Named("memory"))

	log.Info("bot ready", zap.String("model", model), zap.Bool("search_enabled", searcher.Enabled()))
	return chat.NewHandler(orc, mem, model, log.Named("chat")), pool, nil
}
