package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/agendave/agendave/libs/config"
	"github.com/agendave/agendave/libs/db"
	"github.com/agendave/agendave/services/booking-service/internal/availability"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/agendave/agendave/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

// Store is everything the engine reads.
type Store interface {
	availability.Store
	scheduling.Ledger
	scheduling.Catalog
	settings.Store
}

type opener func(ctx context.Context, databaseURL string) (Store, func(), error)

func postgresOpener(ctx context.Context, databaseURL string) (Store, func(), error) {
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, databaseURL, db.Options{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewPostgres(pool), pool.Close, nil
}

type globals struct {
	databaseURL string
	timezone    string
	increment   int
	open        opener
}

func newRootCmd(open opener) *cobra.Command {
	_ = config.LoadDotenv()
	g := &globals{open: open}

	root := &cobra.Command{
		Use:           "slotctl",
		Short:         "Inspect and check appointment availability against the booking database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.databaseURL, "database-url", config.String("DATABASE_URL", ""), "Postgres connection string")
	root.PersistentFlags().StringVar(&g.timezone, "timezone", config.String("TIMEZONE", "UTC"), "IANA zone that dates and times are in")
	root.PersistentFlags().IntVar(&g.increment, "increment", config.Int("SLOT_INCREMENT_MINUTES", 30), "slot increment in minutes")

	root.AddCommand(newMigrateCmd(g))
	root.AddCommand(newSlotsCmd(g))
	root.AddCommand(newValidateCmd(g))
	return root
}

// engine opens the store and builds an engine over it. The caller must run the returned closer.
func (g *globals) engine(ctx context.Context) (*scheduling.Engine, func(), error) {
	loc, err := time.LoadLocation(g.timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --timezone: %w", err)
	}
	store, closeFn, err := g.open(ctx, g.databaseURL)
	if err != nil {
		return nil, nil, err
	}
	cfg := scheduling.DefaultConfig()
	cfg.SlotIncrementMinutes = g.increment
	cfg.Location = loc
	engine := scheduling.NewEngine(cfg, scheduling.Deps{
		Windows:  availability.NewSource(store),
		Ledger:   store,
		Catalog:  store,
		Settings: settings.NewStoreSource(store, settings.DefaultLimits),
	})
	return engine, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
