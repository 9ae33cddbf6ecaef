package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recruitops/screener-go/internal/ingestion"
	"github.com/recruitops/screener-go/internal/logging"
)

// NewJDCmd constructs the `screener jd` command group for managing the job
// description corpus: add, update, delete, and list.
func NewJDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jd",
		Short: "Manage the job description corpus",
		Long: `Manage the job description PDFs indexed in the vector store.

Each PDF is identified by its filename. Adding an existing filename fails;
use 'jd update' to replace a posting in place.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: job-descriptions)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)`,
	}

	cmd.AddCommand(
		newJDAddCmd(),
		newJDUpdateCmd(),
		newJDDeleteCmd(),
		newJDListCmd(),
	)

	return cmd
}

// openCatalog wires the PDF extractor, embedder, and Qdrant store into a
// Catalog for the jd subcommands.
func openCatalog(cmd *cobra.Command) (*ingestion.Catalog, func(), error) {
	log := logging.New()
	ctx := logging.WithLogger(cmd.Context(), log)
	cmd.SetContext(ctx)

	components, closeRAG, err := buildRAG(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	catalog, err := ingestion.NewCatalog(ingestion.NewPDFExtractor(), components.embedder, components.store)
	if err != nil {
		closeRAG()
		return nil, nil, err
	}
	return catalog, closeRAG, nil
}

func newJDAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [file.pdf ...]",
		Short: "Index one or more job description PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, closeRAG, err := openCatalog(cmd)
			if err != nil {
				return fmt.Errorf("jd add: %w", err)
			}
			defer closeRAG()

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("jd add: %w", err)
				}
				id := filepath.Base(path)
				if err := catalog.Add(cmd.Context(), id, data); err != nil {
					return fmt.Errorf("jd add %s: %w", id, err)
				}
				fmt.Printf("added %s\n", id)
			}
			return nil
		},
	}
}

func newJDUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [file.pdf]",
		Short: "Replace an indexed job description with a new revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, closeRAG, err := openCatalog(cmd)
			if err != nil {
				return fmt.Errorf("jd update: %w", err)
			}
			defer closeRAG()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("jd update: %w", err)
			}
			id := filepath.Base(args[0])
			if err := catalog.Update(cmd.Context(), id, data); err != nil {
				return fmt.Errorf("jd update %s: %w", id, err)
			}
			fmt.Printf("updated %s\n", id)
			return nil
		},
	}
}

func newJDDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id ...]",
		Short: "Remove job descriptions from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, closeRAG, err := openCatalog(cmd)
			if err != nil {
				return fmt.Errorf("jd delete: %w", err)
			}
			defer closeRAG()

			for _, id := range args {
				if err := catalog.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("jd delete %s: %w", id, err)
				}
				fmt.Printf("deleted %s\n", id)
			}
			return nil
		},
	}
}

func newJDListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the indexed job descriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, closeRAG, err := openCatalog(cmd)
			if err != nil {
				return fmt.Errorf("jd list: %w", err)
			}
			defer closeRAG()

			ids, err := catalog.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("jd list: %w", err)
			}
			if len(ids) == 0 {
				fmt.Println("no job descriptions indexed")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}
