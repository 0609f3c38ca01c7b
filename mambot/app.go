package mambot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/duelhall/mambot/mambot/catalog"
	"github.com/duelhall/mambot/mambot/database"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/conversion"
	"github.com/duelhall/mambot/mambot/economy/ledger"
	"github.com/duelhall/mambot/mambot/economy/trade"
	"github.com/duelhall/mambot/mambot/scheduler"
	"github.com/duelhall/mambot/mambot/services"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// App wires the persistent economy together: the database, the ledger, the
// conversion and trade engines, the rollover scheduler and the query surface.
type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB      *database.DB
	Ledger  *ledger.Manager
	Catalog *catalog.Catalog

	AccountRepository    repositories.AccountRepository
	PrintingRepository   repositories.PrintingRepository
	CollectionRepository repositories.CollectionRepository
	TradeRepository      repositories.TradeRepository
	OverrideRepository   repositories.OverrideRepository
	RolloverRepository   repositories.RolloverRepository
	WishlistRepository   repositories.WishlistRepository
	QuestRepository      repositories.QuestRepository
	StatsRepository      repositories.StatsRepository

	Conversion *conversion.Engine
	Trades     *trade.Coordinator
	Scheduler  *scheduler.Scheduler

	QueryService    *services.QueryService
	StatsService    *services.StatsService
	AdminService    *services.AdminService
	SnapshotService *services.SnapshotService
}

// Setup connects the database, creates the schema, loads the catalog and
// builds every component. Call Close when done.
func (a *App) Setup(ctx context.Context) error {
	db, err := database.New(ctx, a.Cfg.DB)
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.InitializeSchema(ctx); err != nil {
		return err
	}

	bunDB := db.BunDB()
	a.Ledger = ledger.NewManager(bunDB)

	a.AccountRepository = repositories.NewAccountRepository(bunDB)
	a.PrintingRepository = repositories.NewPrintingRepository(bunDB)
	a.CollectionRepository = repositories.NewCollectionRepository(bunDB)
	a.TradeRepository = repositories.NewTradeRepository(bunDB)
	a.OverrideRepository = repositories.NewOverrideRepository(bunDB)
	a.RolloverRepository = repositories.NewRolloverRepository(bunDB)
	a.WishlistRepository = repositories.NewWishlistRepository(bunDB)
	a.QuestRepository = repositories.NewQuestRepository(bunDB)
	a.StatsRepository = repositories.NewStatsRepository(bunDB)

	a.Catalog = catalog.New(a.Cfg.Catalog.Dir, a.Cfg.Catalog.Sets, a.PrintingRepository)
	if a.Cfg.Catalog.Dir != "" {
		if err := a.Catalog.Reload(ctx); err != nil {
			return err
		}
	}

	boundary, err := scheduler.NewBoundary(a.Cfg.Rollover.Timezone, a.Cfg.Rollover.Time)
	if err != nil {
		return err
	}

	exchange := conversion.ExchangeRate{From: 2, To: 1}
	if a.Cfg.Conversion.ExchangeRate != "" {
		exchange, err = conversion.ParseExchangeRate(a.Cfg.Conversion.ExchangeRate)
		if err != nil {
			return err
		}
	}
	rates := conversion.DefaultRates()
	a.Conversion = conversion.NewEngine(
		a.Ledger,
		a.PrintingRepository,
		a.OverrideRepository,
		a.RolloverRepository,
		a.CollectionRepository,
		conversion.Config{
			Rates:           rates,
			Exchange:        exchange,
			SaleDiscountPct: a.Cfg.Conversion.SaleDiscountPct,
			BulkKeepDefault: a.Cfg.Conversion.BulkKeepDefault,
			DayKey:          boundary.DayKey,
		},
	)

	a.Trades = trade.NewCoordinator(
		a.Ledger,
		a.TradeRepository,
		a.PrintingRepository,
		time.Duration(a.Cfg.Trade.ExpiryHours)*time.Hour,
		nil,
	)

	a.Scheduler = scheduler.New(boundary, scheduler.SystemClock, a.RolloverRepository,
		scheduler.NewDailyGrantJob(a.Ledger, a.AccountRepository, a.RolloverRepository, a.Cfg.Rollover.DailyMambucks),
		scheduler.NewChipGrantJob(a.Ledger, a.AccountRepository, a.RolloverRepository, a.Cfg.Rollover.DailyChips),
		scheduler.NewSaleRerollJob(a.PrintingRepository, a.RolloverRepository, rates, a.Cfg.Conversion.SaleDiscountPct),
		scheduler.NewQuestResetJob(bunDB, a.QuestRepository),
	)

	a.QueryService = services.NewQueryService(bunDB, a.CollectionRepository, a.WishlistRepository, a.PrintingRepository, a.RolloverRepository)
	a.StatsService = services.NewStatsService(bunDB, a.StatsRepository)
	a.AdminService = services.NewAdminService(a.Ledger, a.PrintingRepository, a.WishlistRepository, a.QuestRepository)

	if a.Cfg.Spaces.Key != "" {
		snapshots, err := services.NewSnapshotService(
			a.Cfg.Spaces.Key, a.Cfg.Spaces.Secret,
			a.Cfg.Spaces.Region, a.Cfg.Spaces.Bucket, a.Cfg.Spaces.Root)
		if err != nil {
			return err
		}
		a.SnapshotService = snapshots
	}

	slog.Info("Economy core ready",
		slog.String("version", a.Version),
		slog.String("commit", a.Commit))
	return nil
}

// RunRolloverLoop ticks the scheduler until ctx is cancelled.
func (a *App) RunRolloverLoop(ctx context.Context) error {
	tick := time.Duration(a.Cfg.Rollover.TickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Scheduler.CheckAndRun(ctx); err != nil {
				if errors.Is(err, scheduler.ErrRolloverAlreadyRunning) {
					continue
				}
				slog.Error("Rollover tick failed",
					slog.String("type", "rollover"),
					slog.Any("error", err))
			}
		}
	}
}

// RunTradeExpiryLoop flips overdue trades to Expired until ctx is cancelled.
func (a *App) RunTradeExpiryLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Trades.Expire(ctx); err != nil {
				slog.Error("Trade expiry failed", slog.Any("error", err))
			}
		}
	}
}

// SnapshotCollections exports every holding and uploads it to object storage.
// The export transaction commits before the upload starts.
func (a *App) SnapshotCollections(ctx context.Context) error {
	if a.SnapshotService == nil {
		return errors.New("object storage is not configured")
	}
	data, err := a.QueryService.ExportCollectionCSV(ctx)
	if err != nil {
		return err
	}
	_, err = a.SnapshotService.UploadCollectionCSV(ctx, data, time.Now())
	return err
}

// ReloadCatalog re-reads the CSV catalog without a restart.
func (a *App) ReloadCatalog(ctx context.Context) error {
	return a.Catalog.Reload(ctx)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
