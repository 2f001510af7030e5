package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/ingestion"
)

func newIngestCommand() *cobra.Command {
	var (
		file   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a CSV of vendor records and print the batch report",
		Example: `  fern ingest --file vendors.csv
  fern ingest --file zycus-export.csv --source Zycus`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			records, err := ingestion.ReadCSV(f)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			db, err := a.openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			redisClient, err := a.openRedis()
			if err != nil {
				return err
			}
			defer redisClient.Close()

			service, _, err := a.ingestionService(db, redisClient, nil)
			if err != nil {
				return err
			}

			report := service.IngestBatch(ctx, source, records)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if failed := report.Outcomes[ingestion.OutcomeFailed]; failed > 0 {
				return fmt.Errorf("%d of %d records failed", failed, report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with a header row of canonical field names")
	cmd.Flags().StringVar(&source, "source", ingestion.SourceCSVImport, "source system the records came from")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
