package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeAccepted  TradeStatus = "accepted"
	TradeSettled   TradeStatus = "settled"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s TradeStatus) Terminal() bool {
	return s == TradeSettled || s == TradeCancelled || s == TradeExpired
}

// TradeCard is one card line in an offer.
type TradeCard struct {
	PrintingID string `json:"printing_id"`
	Qty        int64  `json:"qty"`
}

// TradeShards is an optional shard amount attached to an offer.
type TradeShards struct {
	SetID  int   `json:"set_id"`
	Amount int64 `json:"amount"`
}

// TradeOffer is one participant's side of a trade. Ownership is not reserved
// at offer time; everything here is re-validated at settlement.
type TradeOffer struct {
	Cards  []TradeCard   `json:"cards,omitempty"`
	Shards []TradeShards `json:"shards,omitempty"`
}

func (o TradeOffer) Empty() bool {
	return len(o.Cards) == 0 && len(o.Shards) == 0
}

func EncodeOffer(o TradeOffer) (json.RawMessage, error) {
	return json.Marshal(o)
}

func DecodeOffer(raw json.RawMessage) (TradeOffer, error) {
	var o TradeOffer
	if len(raw) == 0 {
		return o, nil
	}
	err := json.Unmarshal(raw, &o)
	return o, err
}

type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID                    int64           `bun:"id,pk,autoincrement"`
	InitiatorID           string          `bun:"initiator_id,notnull"`
	CounterpartyID        string          `bun:"counterparty_id,notnull"`
	Status                TradeStatus     `bun:"status,notnull"`
	InitiatorOffer        json.RawMessage `bun:"initiator_offer,type:jsonb"`
	CounterpartyOffer     json.RawMessage `bun:"counterparty_offer,type:jsonb"`
	InitiatorConfirmed    bool            `bun:"initiator_confirmed,notnull,default:false"`
	CounterpartyConfirmed bool            `bun:"counterparty_confirmed,notnull,default:false"`
	CreatedAt             time.Time       `bun:"created_at,notnull"`
	UpdatedAt             time.Time       `bun:"updated_at,notnull"`
	ExpiresAt             time.Time       `bun:"expires_at,notnull"`
}

// Participant reports whether userID is one of the two trade slots.
func (t *Trade) Participant(userID string) bool {
	return userID == t.InitiatorID || userID == t.CounterpartyID
}

// OtherParty returns the counterpart of userID, assuming Participant(userID).
func (t *Trade) OtherParty(userID string) string {
	if userID == t.InitiatorID {
		return t.CounterpartyID
	}
	return t.InitiatorID
}
