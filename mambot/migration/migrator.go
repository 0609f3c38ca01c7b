package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/duelhall/mambot/mambot/database/models"
)

// MongoUser mirrors the legacy bot's users collection.
type MongoUser struct {
	DiscordID string           `bson:"discord_id"`
	Mambucks  int64            `bson:"mambucks"`
	Chips     int64            `bson:"gamba_chips"`
	Shards    map[string]int64 `bson:"shards"`
	JoinedAt  time.Time        `bson:"joined_at"`
}

// MongoUserCard mirrors the legacy usercards collection.
type MongoUserCard struct {
	DiscordID string `bson:"discord_id"`
	PrintID   string `bson:"print_id"`
	Amount    int64  `bson:"amount"`
	Binder    int64  `bson:"binder"`
}

// Migrator copies a legacy MongoDB deployment into the relational schema.
// Rows land through plain batched inserts; run it once against an empty
// database.
type Migrator struct {
	db        *bun.DB
	mongoDB   *mongo.Database
	batchSize int
}

func NewMigrator(db *bun.DB) *Migrator {
	return &Migrator{db: db, batchSize: 1000}
}

// Connect attaches a live Mongo database by URI.
func (m *Migrator) Connect(ctx context.Context, uri, dbName string) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping mongo: %w", err)
	}
	m.mongoDB = client.Database(dbName)
	return nil
}

func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// MigrateAll copies users then usercards.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	start := time.Now()
	if err := m.MigrateUsers(ctx); err != nil {
		return err
	}
	if err := m.MigrateUserCards(ctx); err != nil {
		return err
	}
	slog.Info("Migration complete", slog.Duration("took", time.Since(start)))
	return nil
}

// MigrateUsers turns each legacy user into an account plus balance rows.
func (m *Migrator) MigrateUsers(ctx context.Context) error {
	if m.mongoDB == nil {
		return fmt.Errorf("no mongo connection")
	}
	cur, err := m.mongoDB.Collection("users").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer cur.Close(ctx)

	var users []MongoUser
	for cur.Next(ctx) {
		var mu MongoUser
		if err := cur.Decode(&mu); err == nil && mu.DiscordID != "" {
			users = append(users, mu)
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	return m.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var (
			accounts []*models.Account
			balances []*models.Balance
		)
		flush := func() error {
			if len(accounts) > 0 {
				if _, err := tx.NewInsert().Model(&accounts).
					On("CONFLICT (user_id) DO NOTHING").Exec(ctx); err != nil {
					return fmt.Errorf("failed to insert accounts: %w", err)
				}
				accounts = accounts[:0]
			}
			if len(balances) > 0 {
				if _, err := tx.NewInsert().Model(&balances).
					On("CONFLICT (user_id, kind) DO NOTHING").Exec(ctx); err != nil {
					return fmt.Errorf("failed to insert balances: %w", err)
				}
				balances = balances[:0]
			}
			return nil
		}

		for _, mu := range users {
			joined := mu.JoinedAt
			if joined.IsZero() {
				joined = time.Now()
			}
			accounts = append(accounts, &models.Account{UserID: mu.DiscordID, CreatedAt: joined})
			if mu.Mambucks > 0 {
				balances = append(balances, &models.Balance{
					UserID: mu.DiscordID, Kind: models.KindMambucks, Amount: mu.Mambucks,
				})
			}
			if mu.Chips > 0 {
				balances = append(balances, &models.Balance{
					UserID: mu.DiscordID, Kind: models.KindChips, Amount: mu.Chips,
				})
			}
			for rawSet, amount := range mu.Shards {
				setID, ok := parseSetID(rawSet)
				if !ok || amount <= 0 {
					continue
				}
				balances = append(balances, &models.Balance{
					UserID: mu.DiscordID, Kind: models.ShardKind(setID), Amount: amount,
				})
			}
			if len(accounts) >= m.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}

		slog.Info("Migrated users", slog.Int("count", len(users)))
		return nil
	})
}

// MigrateUserCards turns each legacy usercard into a card_copies row. Rows
// referencing unknown printings are skipped and counted.
func (m *Migrator) MigrateUserCards(ctx context.Context) error {
	if m.mongoDB == nil {
		return fmt.Errorf("no mongo connection")
	}

	known := make(map[string]bool)
	var ids []string
	if err := m.db.NewSelect().
		Model((*models.Printing)(nil)).
		Column("id").
		Scan(ctx, &ids); err != nil {
		return fmt.Errorf("failed to list printings: %w", err)
	}
	for _, id := range ids {
		known[id] = true
	}

	cur, err := m.mongoDB.Collection("usercards").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query usercards: %w", err)
	}
	defer cur.Close(ctx)

	var cards []MongoUserCard
	for cur.Next(ctx) {
		var mc MongoUserCard
		if err := cur.Decode(&mc); err == nil {
			cards = append(cards, mc)
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	var skipped int
	return m.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var copies []*models.CardCopy
		flush := func() error {
			if len(copies) == 0 {
				return nil
			}
			if _, err := tx.NewInsert().Model(&copies).
				On("CONFLICT (user_id, printing_id) DO NOTHING").Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert card copies: %w", err)
			}
			copies = copies[:0]
			return nil
		}

		for _, mc := range cards {
			if mc.Amount <= 0 || mc.DiscordID == "" {
				continue
			}
			if !known[mc.PrintID] {
				skipped++
				continue
			}
			binder := mc.Binder
			if binder < 0 {
				binder = 0
			}
			if binder > mc.Amount {
				binder = mc.Amount
			}
			copies = append(copies, &models.CardCopy{
				UserID:     mc.DiscordID,
				PrintingID: mc.PrintID,
				Owned:      mc.Amount,
				Binder:     binder,
				UpdatedAt:  time.Now(),
			})
			if len(copies) >= m.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}

		slog.Info("Migrated user cards",
			slog.Int("count", len(cards)-skipped),
			slog.Int("skipped_unknown_printing", skipped))
		return nil
	})
}

func parseSetID(raw string) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
