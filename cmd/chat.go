package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley0/parley/internal/completion"
	"github.com/parley0/parley/internal/config"
	"github.com/parley0/parley/internal/convo"
	"github.com/parley0/parley/internal/log"
	"github.com/parley0/parley/internal/relay"
	"github.com/parley0/parley/internal/stream"
	"github.com/parley0/parley/internal/token"
	"github.com/parley0/parley/internal/tool"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelWarn
	if debugFlag {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: jsonLogFlag})

	handler, err := buildHandler(cfg, logger)
	if err != nil {
		return err
	}

	userID := localUserID()
	m := newConsoleMessenger(cmd.OutOrStdout())

	fmt.Fprintln(cmd.OutOrStdout(), "parley ready. /reset clears the conversation, /exit quits.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}

		if err := handler.Handle(ctx, userID, line, m); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("message handling failed", "error", err)
		}
	}
	return scanner.Err()
}

// buildHandler assembles the full relay stack from configuration.
func buildHandler(cfg *config.Config, logger log.Logger) (*relay.Handler, error) {
	tagStyle := cfg.InvocationStyle == config.StyleTags

	store, err := convo.New(convo.Config{
		Seed: relay.NewSeed(relay.SeedConfig{
			Intro:        cfg.Intro,
			HowToRespond: cfg.HowToRespond,
			TagStyle:     tagStyle,
		}),
		Estimator:  token.NewTiktoken(cfg.Model),
		Logger:     logger,
		StaleAfter: time.Duration(cfg.StaleAfterMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}

	client, err := completion.NewOpenAI(completion.OpenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	agg, err := stream.New(stream.Config{
		Logger:       logger,
		EditInterval: time.Duration(cfg.EditIntervalMs) * time.Millisecond,
		Retry: stream.RetryPolicy{
			MaxAttempts:    cfg.EditRetries,
			TimeoutBackoff: 2 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating aggregator: %w", err)
	}

	tools, err := buildTools(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry, err := tool.NewRegistry(tool.RegistryConfig{
		Tools:      tools,
		Logger:     logger,
		ResultCap:  cfg.ResultCap,
		TruncateTo: cfg.ResultTruncateTo,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}

	ctrl, err := relay.NewController(relay.ControllerConfig{
		Store:          store,
		Streamer:       client,
		Aggregator:     agg,
		Registry:       registry,
		Logger:         logger,
		Style:          relay.InvocationStyle(cfg.InvocationStyle),
		TokenCeiling:   cfg.TokenCeiling,
		MaxRounds:      cfg.MaxRounds,
		MaxAutoReplies: cfg.MaxAutoReplies,
	})
	if err != nil {
		return nil, fmt.Errorf("creating controller: %w", err)
	}

	handler, err := relay.NewHandler(relay.HandlerConfig{
		Controller:     ctrl,
		Logger:         logger,
		AllowedUserIDs: cfg.AllowedUserIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("creating handler: %w", err)
	}
	return handler, nil
}

// buildTools instantiates the registered tools. Search needs an API key and
// is left out without one; the page loader is always available.
func buildTools(cfg *config.Config, logger log.Logger) ([]tool.Tool, error) {
	webpage, err := tool.NewWebpage(tool.WebpageConfig{
		Logger:      logger,
		Parallelism: cfg.WebScraper.Parallelism,
		Delay:       time.Duration(cfg.WebScraper.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.WebScraper.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating page loader: %w", err)
	}

	if cfg.Search.APIKey == "" {
		logger.Warn("SERPER_API_KEY not set, web search disabled")
		return []tool.Tool{webpage}, nil
	}

	search, err := tool.NewSearch(tool.SearchConfig{
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating search tool: %w", err)
	}
	return []tool.Tool{search, webpage}, nil
}

// localUserID identifies the terminal user for the conversation store.
func localUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
