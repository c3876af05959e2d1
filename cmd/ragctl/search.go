package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand() *cobra.Command {
	var (
		namespace string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run a query against a namespace the way the chat tools do",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := c.Search(cmd.Context(), namespace, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Title, r.Key)
				fmt.Fprintf(out, "   %s\n", preview(r.Text, 160))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to search")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of results")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
