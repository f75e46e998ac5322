package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quilldocs/docqa-go/internal/ingest"
	"github.com/quilldocs/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which loads, chunks,
// embeds, and indexes local documents into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into the vector store",
		Long: `Load, chunk, embed, and index local documents into the Qdrant vector store.

Supported formats: .pdf, .docx, .txt, .md, .html, .htm. PDF extraction uses
the pdftotext binary (poppler-utils); install it before ingesting PDFs.

Files are processed independently: a file that fails to parse is reported
and skipped without aborting the rest of the batch. Re-ingesting a file
overwrites its previous chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure, gemini (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  docqa ingest contract.pdf
  docqa ingest docs/*.md notes.txt
  CHUNK_SIZE=500 CHUNK_OVERLAP=50 docqa ingest handbook.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if err := ingest.CheckPDFToolAvailable(); err != nil {
				log.Warn("pdftotext not found; PDF files will fail", slog.Any("error", err))
			}

			eng, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer cleanup()

			results, total := eng.Ingest(ctx, args)

			failed := 0
			for _, res := range results {
				if res.Status == ingest.StatusOK {
					fmt.Printf("  ok     %s (%d chunks)\n", res.Filename, res.Chunks)
				} else {
					failed++
					fmt.Printf("  error  %s: %v\n", res.Filename, res.Err)
				}
			}
			fmt.Printf("ingested %d chunks from %d/%d files\n", total, len(results)-failed, len(results))

			if failed == len(results) {
				return errors.New("ingest: all files failed")
			}
			return nil
		},
	}

	return cmd
}
