package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/models"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import .xlsx or .csv tender spreadsheets",
		Long: `Imports every sheet of each file. Rows whose reference number (or, without one,
title) is already stored are counted as duplicates. With --dry-run the stored
tenders and profile are copied into memory and nothing is written back, so the
counts show what an import would do.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer closeStore()
			im := a.importer(store)

			var batches []*models.ImportBatch
			var failed error
			for _, path := range args {
				batch, err := importPath(cmd, im, path)
				if batch != nil {
					batches = append(batches, batch)
				}
				if err != nil {
					failed = fmt.Errorf("%s: %w", path, err)
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(batches); err != nil {
					return err
				}
				return failed
			}
			renderBatches(cmd.OutOrStdout(), batches)
			return failed
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "import into memory only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print batches as JSON")
	return cmd
}

func importPath(cmd *cobra.Command, im *ingest.Importer, path string) (*models.ImportBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return im.ImportFile(cmd.Context(), filepath.Base(path), f)
}
