package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/quilldocs/docqa-go/internal/embedder"
	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/logging"
	"github.com/quilldocs/docqa-go/internal/provider"
	"github.com/quilldocs/docqa-go/internal/server"
	"github.com/quilldocs/docqa-go/internal/store"
	"github.com/quilldocs/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing the query, streaming, and upload API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server on localhost.

The server exposes a REST API for querying the knowledge base
(POST /api/query, POST /api/stream), uploading documents (POST /api/upload),
and clearing the index (POST /api/clear), plus health, readiness, and
Prometheus metrics endpoints.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=openai docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Flags win over SERVER_HOST/SERVER_PORT (env or YAML config).
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			vectorStore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vectorStore.Close()

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			eng, err := engine.New(emb, vectorStore, chatModel, engine.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: failed to initialise engine: %w", err)
			}

			// Open conversation history store. DOCQA_HISTORY_DB overrides the
			// default path (~/.docqa/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("DOCQA_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewVectorStorePinger(vectorStore, "qdrant"),
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
			}

			srv, err := server.New(eng, &server.Config{
				Host:      host,
				Port:      port,
				UploadDir: os.Getenv("UPLOAD_DIR"),
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("DOCQA_API_KEY"),
				History:   historyStore,
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
