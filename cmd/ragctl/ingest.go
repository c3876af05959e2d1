package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

func newIngestCommand() *cobra.Command {
	var namespace, key, title string

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Chunk, embed and store documents in a namespace",
		Long: `Ingest reads each file, splits it on blank lines and stores the embedded
chunks under the given namespace. Re-ingesting a key replaces its chunks.
The key defaults to the file name without extension.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && len(args) > 1 {
				return fmt.Errorf("--key can only be used with a single file")
			}

			c, closeFn, err := openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				k := key
				if k == "" {
					k = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}
				t := title
				if t == "" {
					t = k
				}

				n, err := c.Ingest(cmd.Context(), namespace, k, t, string(data))
				if err != nil {
					return fmt.Errorf("failed to ingest %s: %w", path, err)
				}
				logger.Global().Info("document ingested", zap.String("namespace", namespace), zap.String("key", k), zap.Int("chunks", n))
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %d chunks\n", namespace, k, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to store the chunks in (biography, career, ...)")
	cmd.Flags().StringVar(&key, "key", "", "Document key (defaults to the file name)")
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the key)")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}
