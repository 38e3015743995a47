package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change the company profile used for scoring",
	}
	cmd.AddCommand(newProfileShowCmd(a), newProfileSetCmd(a))
	return cmd
}

func newProfileShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProfile(cmd)
			if err != nil {
				return err
			}
			renderProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newProfileSetCmd(a *app) *cobra.Command {
	var (
		turnover  string
		sectors   []string
		types     []string
		certs     []string
		noRescore bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields and rescore stored tenders",
		Long: `Only the flags given are changed. Turnover accepts Indian units, for example
"5 crore", "75 lakh" or "50000000". List flags replace the whole list.`,
		Example: `  tenderctl profile set --turnover "12 cr" --sector construction --sector roads
  tenderctl profile set --cert "ISO 9001" --no-rescore`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore()

			p, err := store.GetProfile(cmd.Context())
			switch {
			case errors.Is(err, models.ErrNotFound):
				p = &models.CompanyProfile{}
			case err != nil:
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("turnover") {
				amount := scoring.ParseAmount(turnover)
				if amount <= 0 && turnover != "0" {
					return fmt.Errorf("cannot parse turnover %q", turnover)
				}
				p.TurnoverAmount = amount
			}
			if flags.Changed("sector") {
				p.BusinessSectors = sectors
			}
			if flags.Changed("type") {
				p.ProjectTypes = types
			}
			if flags.Changed("cert") {
				p.Certifications = certs
			}
			p.Normalize()
			if err := store.SaveProfile(cmd.Context(), p); err != nil {
				return err
			}
			renderProfile(cmd.OutOrStdout(), p)

			if noRescore {
				return nil
			}
			res, err := a.rescore(cmd, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rescored %d of %d tenders (%d failed)\n", res.Scored, res.Total, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&turnover, "turnover", "", "annual turnover, e.g. \"5 crore\"")
	cmd.Flags().StringSliceVar(&sectors, "sector", nil, "business sector (repeatable)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "project type (repeatable)")
	cmd.Flags().StringSliceVar(&certs, "cert", nil, "certification (repeatable)")
	cmd.Flags().BoolVar(&noRescore, "no-rescore", false, "skip rescoring stored tenders")
	return cmd
}
