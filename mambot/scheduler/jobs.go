package scheduler

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/conversion"
	"github.com/duelhall/mambot/mambot/economy/ledger"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	JobDailyGrant = "daily_grant"
	JobChipGrant  = "chip_grant"
	JobSaleReroll = "sale_reroll"
	JobQuestReset = "quest_reset"

	TotalDailyMambucks = "daily_mambucks"
	TotalDailyChips    = "daily_chips"

	defaultGrantParallelism = 8
)

// grantJob credits every account a fixed amount of one currency, once per
// account per boundary. A rollover_grants row keyed by (job, user, day)
// commits together with the credit, so re-runs after a crash skip whoever was
// already paid.
type grantJob struct {
	name        string
	kind        string
	amount      int64
	totalName   string
	ledger      *ledger.Manager
	accounts    repositories.AccountRepository
	rollovers   repositories.RolloverRepository
	parallelism int64
}

func NewDailyGrantJob(
	ledgerMgr *ledger.Manager,
	accounts repositories.AccountRepository,
	rollovers repositories.RolloverRepository,
	amount int64,
) Job {
	return &grantJob{
		name:        JobDailyGrant,
		kind:        models.KindMambucks,
		amount:      amount,
		totalName:   TotalDailyMambucks,
		ledger:      ledgerMgr,
		accounts:    accounts,
		rollovers:   rollovers,
		parallelism: defaultGrantParallelism,
	}
}

func NewChipGrantJob(
	ledgerMgr *ledger.Manager,
	accounts repositories.AccountRepository,
	rollovers repositories.RolloverRepository,
	amount int64,
) Job {
	return &grantJob{
		name:        JobChipGrant,
		kind:        models.KindChips,
		amount:      amount,
		totalName:   TotalDailyChips,
		ledger:      ledgerMgr,
		accounts:    accounts,
		rollovers:   rollovers,
		parallelism: defaultGrantParallelism,
	}
}

func (j *grantJob) Name() string { return j.name }

func (j *grantJob) Run(ctx context.Context, dayKey string) error {
	if j.amount <= 0 {
		return nil
	}
	ids, err := j.accounts.ListIDs(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(j.parallelism)
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		id := id
		g.Go(func() error {
			defer sem.Release(1)
			return j.grantOne(ctx, id, dayKey)
		})
	}
	return g.Wait()
}

func (j *grantJob) grantOne(ctx context.Context, userID, dayKey string) error {
	return j.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		granted, err := j.rollovers.TryInsertGrant(ctx, tx, j.name, userID, dayKey)
		if err != nil {
			return err
		}
		if !granted {
			return nil
		}
		opID := fmt.Sprintf("%s:%s", j.name, dayKey)
		if _, err := j.ledger.AdjustCurrencyTx(ctx, tx, userID, j.kind, j.amount, opID); err != nil {
			return err
		}
		return j.rollovers.IncrementRunningTotal(ctx, tx, j.totalName, j.amount)
	})
}

// saleRerollJob picks one random craftable printing per rarity and stores it
// as the day's discounted sale.
type saleRerollJob struct {
	printings   repositories.PrintingRepository
	rollovers   repositories.RolloverRepository
	rates       *conversion.Rates
	discountPct int64
}

func NewSaleRerollJob(
	printings repositories.PrintingRepository,
	rollovers repositories.RolloverRepository,
	rates *conversion.Rates,
	discountPct int64,
) Job {
	if rates == nil {
		rates = conversion.DefaultRates()
	}
	return &saleRerollJob{
		printings:   printings,
		rollovers:   rollovers,
		rates:       rates,
		discountPct: discountPct,
	}
}

func (j *saleRerollJob) Name() string { return JobSaleReroll }

func (j *saleRerollJob) Run(ctx context.Context, dayKey string) error {
	printings, err := j.printings.All(ctx)
	if err != nil {
		return err
	}

	buckets := make(map[string][]*models.Printing)
	for _, p := range printings {
		if !p.Craftable {
			continue
		}
		if _, ok := j.rates.CraftCostFor(p.Rarity); !ok {
			continue
		}
		buckets[p.Rarity] = append(buckets[p.Rarity], p)
	}

	var sales []*models.DailySale
	for rarity, pool := range buckets {
		pick := pool[rand.Intn(len(pool))]
		base, _ := j.rates.CraftCostFor(rarity)
		sales = append(sales, &models.DailySale{
			DayKey:      dayKey,
			Rarity:      rarity,
			PrintingID:  pick.ID,
			PriceShards: conversion.SalePrice(base, j.discountPct),
		})
	}
	return j.rollovers.SetSales(ctx, dayKey, sales)
}

// questResetJob wipes daily quest progress at the boundary.
type questResetJob struct {
	db     bun.IDB
	quests repositories.QuestRepository
}

func NewQuestResetJob(db bun.IDB, quests repositories.QuestRepository) Job {
	return &questResetJob{db: db, quests: quests}
}

func (j *questResetJob) Name() string { return JobQuestReset }

func (j *questResetJob) Run(ctx context.Context, _ string) error {
	_, err := j.quests.ResetDaily(ctx, j.db)
	return err
}
