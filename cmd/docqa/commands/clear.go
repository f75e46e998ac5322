package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quilldocs/docqa-go/internal/logging"
)

// NewClearCmd constructs the `docqa clear` command, which deletes the entire
// document index.
func NewClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all indexed documents",
		Long: `Delete every document chunk from the vector store.

The deletion is irreversible. Pass --yes to skip the confirmation prompt
(e.g. in scripts).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !yes {
				fmt.Print("This deletes the entire index and cannot be undone. Continue? [y/N] ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					fmt.Println("aborted")
					return nil
				}
			}

			eng, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			defer cleanup()

			if err := eng.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Println("index cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
