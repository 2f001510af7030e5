package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/ownership"
)

func newOwnershipCommand() *cobra.Command {
	var (
		path   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ownership",
		Short: "Validate and print the field ownership matrix",
		Long: `Loads the field ownership matrix (the embedded default, or --matrix) and prints the
owner and source priority of every canonical field. A malformed matrix exits non-zero.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			matrix, err := ownership.LoadMatrix(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(matrix.Fields())
			}

			fmt.Fprintf(out, "sources: %s\nnatural key: %s (authoritative: %s)\n\n",
				strings.Join(matrix.Sources(), ", "), matrix.NaturalKeyField(), matrix.AuthoritativeSource())

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tOWNER\tPRIORITY")
			for _, field := range matrix.Fields() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", field.Field, field.Owner, strings.Join(field.Priority, " > "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&path, "matrix", "", "matrix YAML file (defaults to OWNERSHIP_MATRIX_PATH, then the built-in matrix)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.PreRun = func(*cobra.Command, []string) {
		if path == "" {
			if cfg, err := config.Load(); err == nil {
				path = cfg.OwnershipMatrixPath
			}
		}
	}
	return cmd
}
