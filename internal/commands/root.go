package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/devoll/rhga-schedule-bot/internal/config"
	"github.com/devoll/rhga-schedule-bot/internal/database"
	"github.com/devoll/rhga-schedule-bot/internal/handlers"
	"github.com/devoll/rhga-schedule-bot/internal/repository"
	"github.com/devoll/rhga-schedule-bot/internal/sheets"
	"github.com/devoll/rhga-schedule-bot/internal/syncer"
	"github.com/devoll/rhga-schedule-bot/internal/timetable"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

// NewRootCmd builds the schedule-bot command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "schedule-bot",
		Short:         "Google Sheets timetable sync with HTTP, web chat and Telegram access",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (env vars override it)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSyncCmd(opts))
	root.AddCommand(newHashPasswordCmd(opts))
	return root
}

// store is what both database backends provide.
type store interface {
	timetable.Store
	timetable.Replacer
	handlers.GroupFinder
}

// app holds the wired services shared by serve and sync.
type app struct {
	cfg       config.Config
	store     store
	timetable *timetable.Service
	fetcher   *sheets.Client
	sync      *syncer.Service
	close     func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	st, closeDB, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	client, err := sheets.NewClient(sheets.ClientOptions{
		BaseURL: cfg.Google.BaseURL,
		Timeout: cfg.Google.Timeout,
		RPS:     cfg.Google.RPS,
	})
	if err != nil {
		closeDB()
		return nil, err
	}

	svc := timetable.NewService(st, timetable.Options{Atomic: cfg.Sync.Atomic})
	return &app{
		cfg:       cfg,
		store:     st,
		timetable: svc,
		fetcher:   client,
		sync:      syncer.NewService(client, svc, cfg),
		close:     closeDB,
	}, nil
}

func openStore(ctx context.Context, db config.Database) (store, func(), error) {
	switch db.Driver {
	case "postgres":
		pool, err := database.InitPool(ctx, db.DSN, db.MaxConns, db.ViaBouncer)
		if err != nil {
			return nil, nil, err
		}
		log.Println("✅ Connected to Postgres")
		return repository.NewTimetablePGRepository(pool), pool.Close, nil
	case "sqlite3":
		conn, err := database.InitDB(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("✅ Opened SQLite database %s", db.DSN)
		return repository.NewTimetableRepository(conn), func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}
