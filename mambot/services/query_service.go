// services/query_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/uptrace/bun"
)

// Wallet is every currency an account holds: mambucks, gamba chips and
// per-set shards.
type Wallet struct {
	UserID   string
	Mambucks int64
	Chips    int64
	Shards   map[int]int64
}

// WishlistMatch pairs who holds a printing in a binder with who wants it.
type WishlistMatch struct {
	Printing *models.Printing
	Holders  []*models.CardCopy
	Wishers  []*models.WishlistEntry
}

// QueryService is the read-only reporting surface. Every method reads
// committed state only; no method takes account locks.
type QueryService struct {
	db          *bun.DB
	collections repositories.CollectionRepository
	wishlists   repositories.WishlistRepository
	printings   repositories.PrintingRepository
	rollovers   repositories.RolloverRepository
}

func NewQueryService(
	db *bun.DB,
	collections repositories.CollectionRepository,
	wishlists repositories.WishlistRepository,
	printings repositories.PrintingRepository,
	rollovers repositories.RolloverRepository,
) *QueryService {
	return &QueryService{
		db:          db,
		collections: collections,
		wishlists:   wishlists,
		printings:   printings,
		rollovers:   rollovers,
	}
}

// Collection lists a user's owned printings, optionally hiding
// binder-reserved copies.
func (s *QueryService) Collection(ctx context.Context, userID string, excludeBinder bool) ([]*repositories.OwnedPrinting, error) {
	return s.collections.ListByUser(ctx, userID, excludeBinder)
}

// Wallet aggregates every balance row for the account.
func (s *QueryService) Wallet(ctx context.Context, userID string) (*Wallet, error) {
	var balances []*models.Balance
	err := s.db.NewSelect().
		Model(&balances).
		Where("user_id = ?", userID).
		Order("kind ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	wallet := &Wallet{UserID: userID, Shards: make(map[int]int64)}
	for _, bal := range balances {
		switch bal.Kind {
		case models.KindMambucks:
			wallet.Mambucks = bal.Amount
		case models.KindChips:
			wallet.Chips = bal.Amount
		default:
			if setID, ok := models.ShardSetID(bal.Kind); ok {
				wallet.Shards[setID] = bal.Amount
			}
		}
	}
	return wallet, nil
}

// Wishlist lists a user's wanted printings.
func (s *QueryService) Wishlist(ctx context.Context, userID string) ([]*models.WishlistEntry, error) {
	return s.wishlists.ListByUser(ctx, userID)
}

// WishlistMatches reports, for one printing, the users holding it in a
// binder against the users wanting it.
func (s *QueryService) WishlistMatches(ctx context.Context, printingID string) (*WishlistMatch, error) {
	printing, err := s.printings.GetByID(ctx, printingID)
	if err != nil {
		return nil, err
	}
	holders, err := s.collections.BinderHolders(ctx, printingID)
	if err != nil {
		return nil, err
	}
	wishers, err := s.wishlists.Wishers(ctx, printingID)
	if err != nil {
		return nil, err
	}
	return &WishlistMatch{Printing: printing, Holders: holders, Wishers: wishers}, nil
}

// RunningTotal returns a named daily-earnable counter.
func (s *QueryService) RunningTotal(ctx context.Context, name string) (int64, error) {
	return s.rollovers.RunningTotal(ctx, name)
}

// ExportCollectionCSV writes every held copy as CSV inside one transaction,
// so the export is a point-in-time snapshot even while trades settle.
func (s *QueryService) ExportCollectionCSV(ctx context.Context) ([]byte, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)
	if err := w.Write([]string{"user_id", "cardname", "cardrarity", "cardset", "cardcode", "cardid", "owned", "binder"}); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		type exportRow struct {
			UserID  string `bun:"user_id"`
			Name    string `bun:"name"`
			Rarity  string `bun:"rarity"`
			SetName string `bun:"set_name"`
			Code    string `bun:"code"`
			CardID  string `bun:"card_id"`
			Owned   int64  `bun:"owned"`
			Binder  int64  `bun:"binder"`
		}

		var rows []exportRow
		err := tx.NewSelect().
			Model((*models.CardCopy)(nil)).
			ColumnExpr("cc.user_id, cc.owned, cc.binder").
			ColumnExpr("p.name, p.rarity, p.set_name, p.code, p.card_id").
			Join("JOIN printings AS p ON p.id = cc.printing_id").
			Where("cc.owned > 0").
			Order("cc.user_id ASC", "p.set_name ASC", "p.name ASC").
			Scan(ctx, &rows)
		if err != nil {
			return fmt.Errorf("failed to export collection: %w", err)
		}

		for _, row := range rows {
			record := []string{
				row.UserID, row.Name, row.Rarity, row.SetName, row.Code, row.CardID,
				strconv.FormatInt(row.Owned, 10), strconv.FormatInt(row.Binder, 10),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(out.String()), nil
}
