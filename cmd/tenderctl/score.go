package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/david/tender-scout/internal/memstore"
	"github.com/david/tender-scout/internal/models"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		limit     int
		minScore  int
		breakdown bool
	)
	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Rank a spreadsheet's tenders against the stored profile",
		Long: `Scores every row of FILE against the company profile saved in the database
without storing the tenders. Results are sorted by overall score.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.loadProfile(cmd)
			if err != nil {
				return err
			}

			scratch := memstore.New()
			if err := scratch.SaveProfile(cmd.Context(), profile); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			batch, err := a.importer(scratch).ImportFile(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}

			res, err := scratch.ListTenders(cmd.Context(), models.ListParams{
				SortBy:   models.SortScore,
				MinScore: minScore,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderTenders(out, res.Tenders)
			fmt.Fprintf(out, "%d of %d tenders shown (%d rows read)\n", len(res.Tenders), res.Total, batch.RowsSeen)
			if breakdown {
				for i := range res.Tenders {
					t := &res.Tenders[i]
					fmt.Fprintf(out, "\n%s\n", t.Title)
					renderBreakdown(out, t.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tenders to show")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "hide tenders scoring below this")
	cmd.Flags().BoolVar(&breakdown, "breakdown", false, "print the per-criterion breakdown")
	return cmd
}

// loadProfile reads the profile from the database file.
func (a *app) loadProfile(cmd *cobra.Command) (*models.CompanyProfile, error) {
	store, closeStore, err := a.openStore(cmd.Context(), false)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	p, err := store.GetProfile(cmd.Context())
	if errors.Is(err, models.ErrNotFound) {
		return nil, errors.New("no company profile configured; run 'tenderctl profile set' first")
	}
	return p, err
}
