package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// Canonical rarity names. Starlight stays distinct: it is never craftable or
// fragmentable.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RaritySuper     = "super"
	RarityUltra     = "ultra"
	RaritySecret    = "secret"
	RarityStarlight = "starlight"
)

var canonRarity = map[string]string{
	"c": RarityCommon, "common": RarityCommon,
	"u": RarityUncommon, "uncommon": RarityUncommon,
	"r": RarityRare, "rare": RarityRare,
	"sr": RaritySuper, "super": RaritySuper, "super rare": RaritySuper,
	"ur": RarityUltra, "ultra": RarityUltra, "ultra rare": RarityUltra,
	"sec": RaritySecret, "secret": RaritySecret, "secret rare": RaritySecret,
	"starlight": RarityStarlight, "starlight rare": RarityStarlight,
}

func CanonicalRarity(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canon, ok := canonRarity[key]; ok {
		return canon
	}
	return key
}

// Printing identifies a (card, set, rarity) combination, the unit of inventory
// tracking. The id is a stable hash of the normalized identifying fields.
type Printing struct {
	bun.BaseModel `bun:"table:printings,alias:p"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name,notnull"`
	Rarity    string `bun:"rarity,notnull"`
	SetName   string `bun:"set_name,notnull"`
	SetID     int    `bun:"set_id,notnull"`
	Code      string `bun:"code"`
	CardID    string `bun:"card_id"`
	Craftable bool   `bun:"craftable,notnull"`
}

func (p *Printing) Label() string {
	return fmt.Sprintf("%s (%s, set:%s)", p.Name, p.Rarity, p.SetName)
}

// PrintingKey computes the 16-hex print key from the normalized identifying
// fields. Key stability matters: persisted card copies reference it.
func PrintingKey(name, rarity, setName, code, cardID string) string {
	base := strings.ToLower(fmt.Sprintf("%s|%s|%s|%s|%s",
		strings.TrimSpace(name),
		CanonicalRarity(rarity),
		strings.TrimSpace(setName),
		strings.TrimSpace(code),
		strings.TrimSpace(cardID),
	))
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])[:16]
}
