// Command tenderctl imports tender spreadsheets into a local SQLite file and
// scores them against the company profile without running the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/api"
	"github.com/david/tender-scout/internal/config"
	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/memstore"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
	"github.com/david/tender-scout/internal/sqlitestore"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type app struct {
	dbPath   string
	logLevel string
	cfg      *config.Config
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "tenderctl",
		Short:        "Import and score tender spreadsheets offline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDBPath(), "SQLite database file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newImportCmd(a),
		newScoreCmd(a),
		newRescoreCmd(a),
		newProfileCmd(a),
	)
	return root
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tenders.db"
	}
	return filepath.Join(home, ".tender-scout", "tenders.db")
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	log, err := logger.Init(a.logLevel, cfg.Logging.Environment, "tenderctl")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = log
	return nil
}

// openStore returns the SQLite store, or an in-memory copy of it when
// dryRun is set.
func (a *app) openStore(ctx context.Context, dryRun bool) (api.Store, func(), error) {
	if dryRun {
		scratch, err := a.scratchStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return scratch, func() {}, nil
	}
	s, err := sqlitestore.Open(a.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// scratchStore copies the stored profile and tenders into memory, so a dry
// run counts duplicates and scores rows the way a real import would.
func (a *app) scratchStore(ctx context.Context) (*memstore.Store, error) {
	scratch := memstore.New()
	if _, err := os.Stat(a.dbPath); errors.Is(err, fs.ErrNotExist) {
		return scratch, nil
	}
	db, err := sqlitestore.Open(a.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	p, err := db.GetProfile(ctx)
	switch {
	case err == nil:
		if err := scratch.SaveProfile(ctx, p); err != nil {
			return nil, err
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	params := models.ListParams{SortBy: models.SortCreated, Limit: models.MaxListLimit}
	for {
		page, err := db.ListTenders(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("copy tenders: %w", err)
		}
		for i := range page.Tenders {
			if err := scratch.CreateTender(ctx, &page.Tenders[i]); err != nil && !errors.Is(err, models.ErrDuplicate) {
				return nil, fmt.Errorf("copy tenders: %w", err)
			}
		}
		if len(page.Tenders) < params.Limit {
			break
		}
		params.Offset += params.Limit
	}
	return scratch, nil
}

func (a *app) scorer() *scoring.Engine {
	return scoring.NewEngine(a.cfg.Scoring.ProjectTypeKeywords)
}

func (a *app) importer(store api.Store) *ingest.Importer {
	return ingest.NewImporter(store, store, store, ingest.Options{
		HeaderScanRows:       a.cfg.Import.HeaderScanRows,
		ProgressEvery:        a.cfg.Import.ProgressEvery,
		DeadlineFallbackDays: a.cfg.Import.DeadlineFallbackDays,
		Scorer:               a.scorer(),
	})
}
