package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/logging"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// natural language question from the indexed documents and streams the
// answer to stdout.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your ingested documents",
		Long: `Ask a natural language question about the documents in the vector store.

The answer is grounded in the indexed content and followed by the list of
source documents (with page numbers where available) it was drawn from.

Examples:
  docqa ask "what does the termination clause say?"
  docqa ask "summarise the Q3 financial results"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			eng, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			events, err := eng.AskStream(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			var sources []engine.Source
			for ev := range events {
				switch ev.Type {
				case engine.EventSource:
					sources = ev.Sources
				case engine.EventAnswer:
					fmt.Print(ev.Content)
				case engine.EventError:
					fmt.Println()
					return fmt.Errorf("ask: %w", ev.Err)
				}
			}
			fmt.Println()

			if len(sources) > 0 {
				fmt.Fprintln(os.Stdout, "\nSources:")
				for _, src := range sources {
					if src.Page != nil {
						fmt.Printf("  - %s (page %d)\n", src.Document, *src.Page)
					} else {
						fmt.Printf("  - %s\n", src.Document)
					}
				}
			}

			return nil
		},
	}

	return cmd
}
