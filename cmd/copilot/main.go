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
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/obexdata/warehouse-copilot/internal/audit"
	"github.com/obexdata/warehouse-copilot/internal/config"
	"github.com/obexdata/warehouse-copilot/internal/cubes"
	"github.com/obexdata/warehouse-copilot/internal/guard"
	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/partition"
	"github.com/obexdata/warehouse-copilot/internal/pipeline"
	"github.com/obexdata/warehouse-copilot/internal/session"
	"github.com/obexdata/warehouse-copilot/internal/viz"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

func main() {
	// Flags
	queryFlag := flag.String("q", "", "Run a single natural language question and exit")
	userFlag := flag.String("user", "cli", "Username recorded in the audit journal")
	modelFlag := flag.String("model", "", "OpenRouter model name override")
	flag.Parse()

	// Logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.WarnLevel)

	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	// Config
	cfg := config.Load()
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// Context + signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down copilot...")
		cancel()
	}()

	pool, err := warehouse.NewPool(ctx, warehouse.Config{
		URL:              cfg.WarehouseURL,
		MaxConns:         int32(cfg.WarehouseConns),
		StatementTimeout: cfg.StatementTimeout,
		AnchorTable:      cfg.AnchorTable,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to warehouse")
	}
	defer pool.Close()

	generator, err := llm.NewClient(llm.Config{
		APIKey:    cfg.OpenRouterAPIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.LLMTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create LLM client")
	}

	registry := cubes.Builtin()
	p := pipeline.New(pipeline.Options{
		Generator: generator,
		Guard:     guard.New(registry),
		Resolver:  partition.NewResolver(pool, logger),
		Executor:  pool,
		Selector:  viz.NewSelector(generator, logger),
		Journal:   audit.Nop{},
		Registry:  registry,
		Logger:    logger,
	})

	// Single-shot mode
	if *queryFlag != "" {
		printResponse(p.Run(ctx, pipeline.Request{Username: *userFlag, Message: *queryFlag}))
		return
	}

	runREPL(ctx, p, *userFlag)
}

func runREPL(ctx context.Context, p *pipeline.Pipeline, user string) {
	fmt.Println("Warehouse Copilot (NL → SQL)")
	fmt.Println("Type your question and press Enter. Empty line to exit.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	var history []session.Turn

	for {
		fmt.Print("> ")
		q, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("error reading input:", err)
			return
		}
		q = strings.TrimSpace(q)
		if q == "" {
			fmt.Println("bye")
			return
		}

		// Short cooldown to avoid hammering the LLM if user spams enter.
		time.Sleep(200 * time.Millisecond)

		resp := p.Run(ctx, pipeline.Request{Username: user, Message: q, History: history})
		printResponse(resp)

		history = append(history,
			session.Turn{Role: "user", Content: q, At: time.Now().UTC()},
			session.Turn{Role: "assistant", Content: replySummary(resp), At: time.Now().UTC()},
		)
		if len(history) > session.MaxTurns {
			history = history[len(history)-session.MaxTurns:]
		}
	}
}

func printResponse(resp pipeline.Response) {
	switch resp.Type {
	case "text":
		fmt.Println(resp.Message)
	case "error":
		fmt.Println("error:", resp.Message)
	default:
		fmt.Printf("SQL:\n%s\n\n", resp.SQL)
		if resp.Data.RowCount() == 0 {
			fmt.Println("No data found.")
			return
		}
		fmt.Println(strings.Join(resp.Data.Columns, " | "))
		for i, row := range resp.Data.Rows {
			if i == 20 {
				fmt.Printf("... (%d rows total)\n", resp.Data.RowCount())
				break
			}
			parts := make([]string, len(row))
			for j, v := range row {
				parts[j] = fmt.Sprintf("%v", v)
			}
			fmt.Println(strings.Join(parts, " | "))
		}
		if resp.Chart != nil {
			fmt.Printf("\n[%s chart: %s]\n", resp.Chart.ChartType, resp.Chart.Title)
		}
	}
	fmt.Println()
}

func replySummary(resp pipeline.Response) string {
	if resp.Type == "success" {
		return fmt.Sprintf("Returned %d rows.\n```sql\n%s\n```", resp.Data.RowCount(), resp.SQL)
	}
	return resp.Message
}
