package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
)

const searchCacheSize = 256

var requiredColumns = []string{"cardname", "cardrarity", "cardset", "cardcode", "cardid"}

// Catalog owns the printing definitions: loaded from per-set CSV files,
// synced into the printings table and indexed in memory for lookups and
// search. Reload swaps the whole index without a restart.
type Catalog struct {
	dir       string
	sets      map[string]int
	printings repositories.PrintingRepository

	mu    sync.RWMutex
	index []*models.Printing
	byID  map[string]*models.Printing

	searchCache *lru.Cache
}

// New builds a catalog over a directory of CSV files. sets maps a set name to
// its shard set id; sets absent from the map get id 0 and are skipped for
// shard accounting.
func New(dir string, sets map[string]int, printings repositories.PrintingRepository) *Catalog {
	normalized := make(map[string]int, len(sets))
	for name, id := range sets {
		normalized[strings.ToLower(strings.TrimSpace(name))] = id
	}
	cache, _ := lru.New(searchCacheSize)
	return &Catalog{
		dir:         dir,
		sets:        normalized,
		printings:   printings,
		byID:        make(map[string]*models.Printing),
		searchCache: cache,
	}
}

// SetID resolves a set name to its shard set id.
func (c *Catalog) SetID(setName string) (int, bool) {
	id, ok := c.sets[strings.ToLower(strings.TrimSpace(setName))]
	return id, ok
}

// Reload re-reads every CSV definition, syncs the printings table and swaps
// the in-memory index. Safe to call while the bot is serving.
func (c *Catalog) Reload(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog dir %s: %w", c.dir, err)
	}

	var printings []*models.Printing
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		loaded, err := c.loadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			return err
		}
		for _, p := range loaded {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			printings = append(printings, p)
		}
	}

	if err := c.printings.UpsertAll(ctx, printings); err != nil {
		return err
	}

	byID := make(map[string]*models.Printing, len(printings))
	for _, p := range printings {
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.index = printings
	c.byID = byID
	c.mu.Unlock()
	c.searchCache.Purge()

	slog.Info("Catalog reloaded",
		slog.Int("printings", len(printings)),
		slog.String("dir", c.dir))
	return nil
}

func (c *Catalog) loadFile(path string) ([]*models.Printing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := cols[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", filepath.Base(path), col)
		}
	}

	fallbackSet := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var printings []*models.Printing
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		get := func(col string) string {
			i := cols[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		name := get("cardname")
		if name == "" {
			continue
		}
		setName := get("cardset")
		if setName == "" {
			setName = fallbackSet
		}
		rarity := models.CanonicalRarity(get("cardrarity"))
		code := get("cardcode")
		cardID := get("cardid")
		setID, _ := c.SetID(setName)

		printings = append(printings, &models.Printing{
			ID:        models.PrintingKey(name, rarity, setName, code, cardID),
			Name:      name,
			Rarity:    rarity,
			SetName:   setName,
			SetID:     setID,
			Code:      code,
			CardID:    cardID,
			Craftable: rarity != models.RarityStarlight,
		})
	}
	return printings, nil
}

// Get returns the indexed printing by id.
func (c *Catalog) Get(id string) (*models.Printing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// All returns the current index snapshot.
func (c *Catalog) All() []*models.Printing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Printing, len(c.index))
	copy(out, c.index)
	return out
}

// Resolve returns the printings matching a card name, optionally narrowed to
// one set.
func (c *Catalog) Resolve(name, setName string) []*models.Printing {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.Printing
	for _, p := range c.index {
		if !strings.EqualFold(p.Name, name) {
			continue
		}
		if setName != "" && !strings.EqualFold(p.SetName, setName) {
			continue
		}
		out = append(out, p)
	}
	return out
}
