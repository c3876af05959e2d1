// Command ragctl manages the retrieval corpus the persona answers from.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/config"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/rag"
	"github.com/capitalize-ai/persona-chat/internal/store"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// corpus is what the subcommands need from the retrieval layer.
type corpus interface {
	Ingest(ctx context.Context, namespace, key, title, text string) (int, error)
	Search(ctx context.Context, namespace, query string, limit int) ([]rag.Result, error)
}

// openCorpus connects to the configured store and embedder. Tests replace it.
var openCorpus = func(ctx context.Context) (corpus, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, nil, err
	}
	client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	searcher := rag.NewSearcher(rag.NewOpenAIEmbedder(client, cfg.EmbeddingModel), st)
	return searcher, func() { st.Close() }, nil
}

func newRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Manage the persona's retrieval corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logLevel)
			if err != nil {
				return err
			}
			logger.SetGlobal(log)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug,info,warn,error)")

	root.AddCommand(newIngestCommand(), newSearchCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Global().Error("ragctl failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
