package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/conversation-core/internal/config"
	"github.com/capitalize-ai/conversation-core/internal/debug"
	"github.com/capitalize-ai/conversation-core/internal/feedback"
	"github.com/capitalize-ai/conversation-core/internal/model"
	natsclient "github.com/capitalize-ai/conversation-core/internal/nats"
	"github.com/capitalize-ai/conversation-core/internal/persist"
	"github.com/capitalize-ai/conversation-core/internal/store"
	"github.com/capitalize-ai/conversation-core/internal/stream"
	"github.com/capitalize-ai/conversation-core/internal/transport"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/tracing"
)

func main() {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Streaming chat client with durable local history",
	}
	root.AddCommand(newChatCmd(), newFeedbackCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

func runChat() error {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-core", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st := store.New(log)

	tr, err := buildTransport(cfg, log)
	if err != nil {
		return err
	}

	var opts []stream.Option

	writer, cleanup, err := buildWriter(ctx, cfg, st, log)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	if writer != nil {
		restoreHistory(ctx, writer, st, log)
		opts = append(opts, stream.WithPersister(writer))
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := writer.Close(flushCtx); err != nil {
				log.Warn("failed to flush history on exit", zap.Error(err))
			}
		}()
	}

	opts = append(opts, stream.WithObserver(func(conversationID string, ev model.Event) {
		switch e := ev.(type) {
		case model.TextEvent:
			fmt.Print(e.Text)
		case model.ErrorEvent:
			fmt.Printf("\n[error] %s\n", e.Message)
		case model.FollowupMessagesEvent:
			if len(e.Messages) > 0 {
				fmt.Printf("\n\nsuggested: %s\n", strings.Join(e.Messages, " | "))
			}
		}
	}))

	orch := stream.New(st, tr, log, opts...)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.DebugAddr != "" {
		srv := debug.NewServer(cfg, st, log)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return repl(gctx, orch, st)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// repl reads lines from stdin and feeds them to the orchestrator. Slash
// commands manage the session; anything else is sent as a chat message.
func repl(ctx context.Context, orch *stream.Orchestrator, st *store.Store) error {
	fmt.Println("chatctl — type a message, /help for commands, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(line, orch, st); quit {
				return nil
			}
			continue
		}

		if err := orch.SendMessage(ctx, line); err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}

		// Wait for the turn to complete before prompting again.
		for st.Current().Loading {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
		fmt.Println()
	}
}

func handleCommand(line string, orch *stream.Orchestrator, st *store.Store) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/stop":
		orch.StopAnswering()
	case "/new":
		conv := st.NewConversation()
		fmt.Printf("started conversation %s\n", conv.Identity.ID)
	case "/list":
		current := st.CurrentKey()
		for _, conv := range st.List() {
			marker := " "
			if conv.Identity.Key() == current {
				marker = "*"
			}
			fmt.Printf("%s %s (%d messages)\n", marker, conv.Identity.ID, len(conv.Messages))
		}
	case "/select":
		if len(fields) < 2 {
			fmt.Println("usage: /select <conversation-id>")
			return false
		}
		if err := st.Select(fields[1]); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	case "/delete":
		if len(fields) < 2 {
			fmt.Println("usage: /delete <conversation-id>")
			return false
		}
		if err := st.Delete(fields[1]); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	case "/help":
		fmt.Println("/new /list /select <id> /delete <id> /stop /quit")
	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

func buildTransport(cfg *config.Config, log *logger.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case "sse":
		return transport.NewSSE(transport.SSEConfig{
			Endpoint: cfg.ChatEndpoint,
			Token:    cfg.APIToken,
		}, log), nil
	case "openai":
		return transport.NewOpenAI(cfg.OpenAIAPIKey, cfg.Model, log)
	case "anthropic":
		return transport.NewAnthropic(cfg.AnthropicAPIKey, cfg.Model, log)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func buildWriter(ctx context.Context, cfg *config.Config, st *store.Store, log *logger.Logger) (*persist.Writer, func(), error) {
	var (
		adapter persist.Adapter
		cleanup func()
	)

	switch cfg.PersistBackend {
	case "none":
		return nil, nil, nil
	case "bolt":
		bolt, err := persist.NewBolt(cfg.PersistPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}
		adapter, cleanup = bolt, func() { bolt.Close() }
	case "nats":
		client, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		kv, err := persist.NewKV(ctx, client)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		adapter, cleanup = kv, client.Close
	default:
		return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.PersistBackend)
	}

	mode := store.ModeFull
	if cfg.PersistMode == "options" {
		mode = store.ModeOptions
	}

	writer := persist.NewWriter(adapter, cfg.PersistKey, cfg.PersistInterval, func() ([]byte, error) {
		return st.MarshalSnapshot(mode)
	}, log)

	return writer, cleanup, nil
}

func restoreHistory(ctx context.Context, writer *persist.Writer, st *store.Store, log *logger.Logger) {
	data, err := writer.Load(ctx)
	if errors.Is(err, persist.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("failed to load history", zap.Error(err))
		return
	}
	if err := st.RestoreJSON(data); err != nil {
		log.Warn("failed to restore history", zap.Error(err))
	}
}

func newFeedbackCmd() *cobra.Command {
	var rating string

	cmd := &cobra.Command{
		Use:   "feedback <message-id>",
		Short: "Submit feedback on an assistant message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			client := feedback.NewClient(cfg.FeedbackURL, cfg.APIToken, nil, log)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := client.Submit(ctx, &feedback.Request{
				MessageID: args[0],
				Feedback:  feedback.Rating(rating),
			}); err != nil {
				return err
			}
			fmt.Println("feedback submitted")
			return nil
		},
	}

	cmd.Flags().StringVar(&rating, "rating", "like", "feedback rating: like or dislike")
	return cmd
}
