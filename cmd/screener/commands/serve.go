package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/recruitops/screener-go/internal/chatbot"
	"github.com/recruitops/screener-go/internal/ingestion"
	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/provider"
	"github.com/recruitops/screener-go/internal/server"
	"github.com/recruitops/screener-go/internal/store"
	"github.com/recruitops/screener-go/internal/tracing"
)

// NewServeCmd constructs the `screener serve` command, which starts the HTTP
// server exposing the streaming chat API, session management, job description
// ingestion, and answer feedback.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the screener HTTP server",
		Long: `Start the screener HTTP server on localhost.

The server exposes a REST/SSE API: POST /api/chat streams answers token by
token, /api/documents manages the job description corpus, /api/sessions lists
and replays past conversations, and /api/feedback records answer ratings.

If the chat model cannot be initialised the server still starts in degraded
mode — document management keeps working and chat requests receive a fixed
unavailable notice.

Examples:
  screener serve
  screener serve --port 9090
  MODEL_PROVIDER=ollama screener serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "groq")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// A missing or misconfigured chat model is not fatal: the server
			// runs degraded so the corpus stays manageable.
			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("chat model unavailable, starting degraded", slog.Any("error", err))
				chatModel = nil
			} else {
				log.Info("provider initialised")
			}

			components, closeRAG, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeRAG()

			catalog, err := ingestion.NewCatalog(ingestion.NewPDFExtractor(), components.embedder, components.store)
			if err != nil {
				return fmt.Errorf("serve: failed to create catalog: %w", err)
			}

			// Open the session/feedback store. SCREENER_DB overrides the
			// default path (~/.screener/screener.db).
			dbPath := os.Getenv("SCREENER_DB")
			if dbPath == "" {
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()
			log.Info("session store opened", slog.String("path", dbPath))

			mem := memory.NewWindow(getEnvInt("MEMORY_WINDOW_PAIRS", 0))

			bot, err := chatbot.New(&chatbot.Config{
				ChatModel: chatModel,
				Retriever: components.retriever,
				Memory:    mem,
				TopK:      getEnvInt("RETRIEVAL_TOP_K", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create chatbot: %w", err)
			}

			pingers := []server.Pinger{server.NewQdrantPinger(components.store.Client())}
			if chatModel != nil {
				name := getEnvOrDefault("MODEL_PROVIDER", "groq")
				pingers = append(pingers, server.NewLLMPinger(chatModel, name))
			}

			srv, err := server.New(bot, catalog, st, st, mem, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("SCREENER_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
