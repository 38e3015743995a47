package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/david/tender-scout/internal/api"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
)

func newRescoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Recompute the score of every stored tender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore()
			res, err := a.rescore(cmd, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rescored %d of %d tenders (%d failed)\n", res.Scored, res.Total, res.Failed)
			return nil
		},
	}
}

func (a *app) rescore(cmd *cobra.Command, store api.Store) (scoring.RescoreResult, error) {
	profile, err := store.GetProfile(cmd.Context())
	if errors.Is(err, models.ErrNotFound) {
		return scoring.RescoreResult{}, errors.New("no company profile configured; run 'tenderctl profile set' first")
	}
	if err != nil {
		return scoring.RescoreResult{}, err
	}
	return a.scorer().RescoreAll(cmd.Context(), store, profile, nil)
}
