// services/admin_service.go
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/ledger"
	"github.com/uptrace/bun"
)

// AdminService covers the privileged mutations: handing out or confiscating
// cards, wiping accounts and editing wishlists on a player's behalf. Card
// and currency moves go through the ledger so they stay journaled and
// undoable like everything else.
type AdminService struct {
	ledger    *ledger.Manager
	printings repositories.PrintingRepository
	wishlists repositories.WishlistRepository
	quests    repositories.QuestRepository
}

func NewAdminService(
	ledgerMgr *ledger.Manager,
	printings repositories.PrintingRepository,
	wishlists repositories.WishlistRepository,
	quests repositories.QuestRepository,
) *AdminService {
	return &AdminService{
		ledger:    ledgerMgr,
		printings: printings,
		wishlists: wishlists,
		quests:    quests,
	}
}

// AddCard grants qty copies of a printing.
func (s *AdminService) AddCard(ctx context.Context, userID, printingID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if _, err := s.printings.GetByID(ctx, printingID); err != nil {
		return err
	}
	if err := s.ledger.AdjustCopies(ctx, userID, printingID, qty, 0, "admin:add_card"); err != nil {
		return err
	}
	slog.Info("Admin granted cards",
		slog.String("user_id", userID),
		slog.String("printing_id", printingID),
		slog.Int64("qty", qty))
	return nil
}

// RemoveCard confiscates qty copies. Binder copies are released first if the
// removal would otherwise violate the binder bound.
func (s *AdminService) RemoveCard(ctx context.Context, userID, printingID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	err := s.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		copyRow, err := s.ledger.CopiesTx(ctx, tx, userID, printingID)
		if err != nil {
			return err
		}
		var binderDelta int64
		if remaining := copyRow.Owned - qty; remaining >= 0 && copyRow.Binder > remaining {
			binderDelta = remaining - copyRow.Binder
		}
		return s.ledger.AdjustCopiesTx(ctx, tx, userID, printingID, -qty, binderDelta, "admin:remove_card")
	})
	if err != nil {
		return err
	}
	slog.Info("Admin removed cards",
		slog.String("user_id", userID),
		slog.String("printing_id", printingID),
		slog.Int64("qty", qty))
	return nil
}

// ResetUser zeroes every balance and clears copies, wishlist, quest progress
// and the undo journal in one transaction. The account row itself stays.
func (s *AdminService) ResetUser(ctx context.Context, userID string) error {
	err := s.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Balance)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear balances: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*models.CardCopy)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear copies: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*models.WishlistEntry)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear wishlist: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*models.QuestProgress)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear quests: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*models.LedgerEntry)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear ledger log: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Warn("Admin reset user", slog.String("user_id", userID))
	return nil
}

// SetWish puts a printing on a player's wishlist.
func (s *AdminService) SetWish(ctx context.Context, userID, printingID string, desired int64) error {
	if _, err := s.printings.GetByID(ctx, printingID); err != nil {
		return err
	}
	return s.wishlists.Set(ctx, userID, printingID, desired)
}

// ClearWish removes a printing from a player's wishlist.
func (s *AdminService) ClearWish(ctx context.Context, userID, printingID string) error {
	return s.wishlists.Clear(ctx, userID, printingID)
}
