package trade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/ledger"
	"github.com/uptrace/bun"
)

// MaxOfferCards caps the distinct card lines per side of a trade.
const MaxOfferCards = 5

// Coordinator drives the trade lifecycle: Open, Accepted, Settled, with
// Cancelled and Expired as the terminal escapes. Nothing is reserved while a
// trade is pending; settlement re-validates both sides under the account
// locks and either transfers everything or cancels the trade.
type Coordinator struct {
	ledger    *ledger.Manager
	trades    repositories.TradeRepository
	printings repositories.PrintingRepository
	expiry    time.Duration
	now       func() time.Time
}

func NewCoordinator(
	ledgerMgr *ledger.Manager,
	trades repositories.TradeRepository,
	printings repositories.PrintingRepository,
	expiry time.Duration,
	now func() time.Time,
) *Coordinator {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		ledger:    ledgerMgr,
		trades:    trades,
		printings: printings,
		expiry:    expiry,
		now:       now,
	}
}

func (c *Coordinator) validateOffer(ctx context.Context, offer models.TradeOffer) error {
	if len(offer.Cards) > MaxOfferCards {
		return fmt.Errorf("%w: at most %d card entries per side, got %d", ErrInvalidOffer, MaxOfferCards, len(offer.Cards))
	}
	seen := make(map[string]bool, len(offer.Cards))
	for _, card := range offer.Cards {
		if card.Qty <= 0 {
			return fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidOffer, card.PrintingID)
		}
		if seen[card.PrintingID] {
			return fmt.Errorf("%w: duplicate printing %s", ErrInvalidOffer, card.PrintingID)
		}
		seen[card.PrintingID] = true
		if _, err := c.printings.GetByID(ctx, card.PrintingID); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidOffer, card.PrintingID)
		}
	}
	for _, shards := range offer.Shards {
		if shards.Amount <= 0 {
			return fmt.Errorf("%w: shard amount must be positive", ErrInvalidOffer)
		}
	}
	return nil
}

// Open proposes a trade from initiator to counterparty. The counterparty's
// side stays empty until Accept.
func (c *Coordinator) Open(ctx context.Context, initiatorID, counterpartyID string, offer models.TradeOffer) (*models.Trade, error) {
	if initiatorID == counterpartyID {
		return nil, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidOffer)
	}
	if offer.Empty() {
		return nil, fmt.Errorf("%w: empty opening offer", ErrInvalidOffer)
	}
	if err := c.validateOffer(ctx, offer); err != nil {
		return nil, err
	}

	raw, err := models.EncodeOffer(offer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode offer: %w", err)
	}
	empty, _ := models.EncodeOffer(models.TradeOffer{})

	now := c.now()
	trade := &models.Trade{
		InitiatorID:       initiatorID,
		CounterpartyID:    counterpartyID,
		Status:            models.TradeOpen,
		InitiatorOffer:    raw,
		CounterpartyOffer: empty,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(c.expiry),
	}
	if err := c.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	slog.Info("Trade opened",
		slog.Int64("trade_id", trade.ID),
		slog.String("initiator", initiatorID),
		slog.String("counterparty", counterpartyID))
	return trade, nil
}

// Accept fixes the counterparty's side and moves the trade to Accepted. The
// counteroffer may be empty, but the trade as a whole must include at least
// one card.
func (c *Coordinator) Accept(ctx context.Context, userID string, tradeID int64, offer models.TradeOffer) (*models.Trade, error) {
	trade, err := c.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if userID != trade.CounterpartyID {
		return nil, fmt.Errorf("%w: only %s may accept trade %d", ErrNotParticipant, trade.CounterpartyID, tradeID)
	}
	if trade.Status != models.TradeOpen {
		return nil, fmt.Errorf("%w: trade %d is %s", ErrInvalidTradeState, tradeID, trade.Status)
	}
	if err := c.validateOffer(ctx, offer); err != nil {
		return nil, err
	}

	initiatorOffer, err := models.DecodeOffer(trade.InitiatorOffer)
	if err != nil {
		return nil, fmt.Errorf("failed to decode offer: %w", err)
	}
	if len(initiatorOffer.Cards) == 0 && len(offer.Cards) == 0 {
		return nil, fmt.Errorf("%w: shard-only trades are not allowed", ErrInvalidOffer)
	}

	raw, err := models.EncodeOffer(offer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode offer: %w", err)
	}
	trade.CounterpartyOffer = raw
	trade.Status = models.TradeAccepted
	trade.UpdatedAt = c.now()
	ok, err := c.trades.UpdateIfStatus(ctx, trade, models.TradeOpen)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: trade %d is no longer open", ErrInvalidTradeState, tradeID)
	}

	slog.Info("Trade accepted", slog.Int64("trade_id", trade.ID))
	return trade, nil
}

// Confirm records userID's confirmation. The second confirmation settles the
// trade: both sides revalidated and transferred atomically, or the trade is
// cancelled and ErrStaleOwnership returned.
func (c *Coordinator) Confirm(ctx context.Context, userID string, tradeID int64) (*models.Trade, error) {
	trade, err := c.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) {
		return nil, fmt.Errorf("%w: trade %d", ErrNotParticipant, tradeID)
	}
	if trade.Status != models.TradeAccepted {
		return nil, fmt.Errorf("%w: trade %d is %s", ErrInvalidTradeState, tradeID, trade.Status)
	}

	otherConfirmed := trade.CounterpartyConfirmed
	if userID == trade.CounterpartyID {
		otherConfirmed = trade.InitiatorConfirmed
	}
	if !otherConfirmed {
		// First confirmation just records the flag.
		if userID == trade.InitiatorID {
			trade.InitiatorConfirmed = true
		} else {
			trade.CounterpartyConfirmed = true
		}
		trade.UpdatedAt = c.now()
		ok, err := c.trades.UpdateIfStatus(ctx, trade, models.TradeAccepted)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: trade %d is no longer accepted", ErrInvalidTradeState, tradeID)
		}
		return trade, nil
	}

	return c.settle(ctx, userID, tradeID)
}

func (c *Coordinator) settle(ctx context.Context, userID string, tradeID int64) (*models.Trade, error) {
	var (
		settled *models.Trade
		stale   error
	)
	err := c.ledger.WithAccounts(ctx, participantsOf(ctx, c.trades, tradeID), func(ctx context.Context, tx bun.Tx) error {
		trade, err := c.trades.GetByIDIn(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != models.TradeAccepted {
			return fmt.Errorf("%w: trade %d is %s", ErrInvalidTradeState, tradeID, trade.Status)
		}
		if userID == trade.InitiatorID {
			trade.InitiatorConfirmed = true
		} else {
			trade.CounterpartyConfirmed = true
		}

		initiatorOffer, err := models.DecodeOffer(trade.InitiatorOffer)
		if err != nil {
			return fmt.Errorf("failed to decode offer: %w", err)
		}
		counterOffer, err := models.DecodeOffer(trade.CounterpartyOffer)
		if err != nil {
			return fmt.Errorf("failed to decode offer: %w", err)
		}

		staleReason, err := c.revalidate(ctx, tx, trade.InitiatorID, initiatorOffer)
		if err != nil {
			return err
		}
		if staleReason == "" {
			staleReason, err = c.revalidate(ctx, tx, trade.CounterpartyID, counterOffer)
			if err != nil {
				return err
			}
		}
		if staleReason != "" {
			// The cancellation must commit, so it cannot ride on an error
			// return out of this transaction.
			trade.Status = models.TradeCancelled
			trade.UpdatedAt = c.now()
			ok, err := c.trades.UpdateIfStatusIn(ctx, tx, trade, models.TradeAccepted)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: trade %d moved during settlement", ErrInvalidTradeState, tradeID)
			}
			stale = fmt.Errorf("%w: %s", ErrStaleOwnership, staleReason)
			return nil
		}

		opID := fmt.Sprintf("trade:%d", trade.ID)
		if err := c.transfer(ctx, tx, trade.InitiatorID, trade.CounterpartyID, initiatorOffer, opID); err != nil {
			return err
		}
		if err := c.transfer(ctx, tx, trade.CounterpartyID, trade.InitiatorID, counterOffer, opID); err != nil {
			return err
		}

		trade.Status = models.TradeSettled
		trade.UpdatedAt = c.now()
		ok, err := c.trades.UpdateIfStatusIn(ctx, tx, trade, models.TradeAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: trade %d moved during settlement", ErrInvalidTradeState, tradeID)
		}
		settled = trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale != nil {
		slog.Warn("Trade cancelled at settlement", slog.Int64("trade_id", tradeID), slog.Any("error", stale))
		return nil, stale
	}

	slog.Info("Trade settled",
		slog.Int64("trade_id", settled.ID),
		slog.String("initiator", settled.InitiatorID),
		slog.String("counterparty", settled.CounterpartyID))
	return settled, nil
}

// revalidate checks one side's offer against committed holdings. Returns a
// non-empty reason when something is no longer available.
func (c *Coordinator) revalidate(ctx context.Context, tx bun.Tx, userID string, offer models.TradeOffer) (string, error) {
	for _, card := range offer.Cards {
		copyRow, err := c.ledger.CopiesTx(ctx, tx, userID, card.PrintingID)
		if err != nil {
			return "", err
		}
		if copyRow.Tradable() < card.Qty {
			return fmt.Sprintf("%s holds %d tradable of %s, offered %d",
				userID, copyRow.Tradable(), card.PrintingID, card.Qty), nil
		}
	}
	for _, shards := range offer.Shards {
		balance, err := c.ledger.BalanceTx(ctx, tx, userID, models.ShardKind(shards.SetID))
		if err != nil {
			return "", err
		}
		if balance < shards.Amount {
			return fmt.Sprintf("%s holds %d shards of set %d, offered %d",
				userID, balance, shards.SetID, shards.Amount), nil
		}
	}
	return "", nil
}

func (c *Coordinator) transfer(ctx context.Context, tx bun.Tx, from, to string, offer models.TradeOffer, opID string) error {
	for _, card := range offer.Cards {
		if err := c.ledger.AdjustCopiesTx(ctx, tx, from, card.PrintingID, -card.Qty, 0, opID); err != nil {
			return err
		}
		if err := c.ledger.AdjustCopiesTx(ctx, tx, to, card.PrintingID, card.Qty, 0, opID); err != nil {
			return err
		}
	}
	for _, shards := range offer.Shards {
		kind := models.ShardKind(shards.SetID)
		if _, err := c.ledger.AdjustCurrencyTx(ctx, tx, from, kind, -shards.Amount, opID); err != nil {
			return err
		}
		if _, err := c.ledger.AdjustCurrencyTx(ctx, tx, to, kind, shards.Amount, opID); err != nil {
			return err
		}
	}
	return nil
}

// Cancel voids a pending trade. tradeID 0 targets the caller's most recent
// Open or Accepted trade.
func (c *Coordinator) Cancel(ctx context.Context, userID string, tradeID int64) (*models.Trade, error) {
	var (
		trade *models.Trade
		err   error
	)
	if tradeID == 0 {
		trade, err = c.trades.GetLatestActiveForUser(ctx, userID)
	} else {
		trade, err = c.trades.GetByID(ctx, tradeID)
	}
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) {
		return nil, fmt.Errorf("%w: trade %d", ErrNotParticipant, trade.ID)
	}
	if trade.Status.Terminal() {
		return nil, fmt.Errorf("%w: trade %d is %s", ErrInvalidTradeState, trade.ID, trade.Status)
	}

	prior := trade.Status
	trade.Status = models.TradeCancelled
	trade.UpdatedAt = c.now()
	ok, err := c.trades.UpdateIfStatus(ctx, trade, prior)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: trade %d moved on", ErrInvalidTradeState, trade.ID)
	}

	slog.Info("Trade cancelled", slog.Int64("trade_id", trade.ID), slog.String("by", userID))
	return trade, nil
}

// Expire flips every overdue pending trade to Expired. Meant for a periodic
// caller; returns how many trades were expired.
func (c *Coordinator) Expire(ctx context.Context) (int64, error) {
	n, err := c.trades.ExpireOlderThan(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Expired trades", slog.Int64("count", n))
	}
	return n, nil
}

func (c *Coordinator) Get(ctx context.Context, tradeID int64) (*models.Trade, error) {
	return c.trades.GetByID(ctx, tradeID)
}

func (c *Coordinator) ListForUser(ctx context.Context, userID string) ([]*models.Trade, error) {
	return c.trades.ListForUser(ctx, userID)
}

// participantsOf resolves the two account ids to lock for settlement. On
// lookup failure it returns nil; the in-transaction reload surfaces the error.
func participantsOf(ctx context.Context, trades repositories.TradeRepository, tradeID int64) []string {
	trade, err := trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil
	}
	return []string{trade.InitiatorID, trade.CounterpartyID}
}
