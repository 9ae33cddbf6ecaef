package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recruitops/screener-go/internal/chatbot"
	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/provider"
)

// NewAskCmd constructs the `screener ask` command, which sends a single
// screening question to the assistant and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the screening assistant a one-shot question",
		Long: `Ask the screening assistant a single question and stream the answer.

The question is matched against the indexed job descriptions; paste resume
text after "Screen the following resumes:" to have candidates compared
against the retrieved postings.

Examples:
  screener ask "What does the backend engineer role require?"
  screener ask "Data engineer position. Screen the following resumes: ..."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			components, closeRAG, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeRAG()

			bot, err := chatbot.New(&chatbot.Config{
				ChatModel: chatModel,
				Retriever: components.retriever,
				Memory:    memory.NewWindow(0),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to create chatbot: %w", err)
			}

			result, err := bot.Query(ctx, "cli", args[0], os.Stdout)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(os.Stdout)

			if len(result.Sources) > 0 {
				fmt.Fprintf(os.Stderr, "\nsources: %v\n", result.Sources)
			}
			return nil
		},
	}

	return cmd
}
