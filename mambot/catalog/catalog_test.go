package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duelhall/mambot/mambot/database"
	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
)

const elementalCSV = `cardname,cardrarity,cardset,cardcode,cardid
Mole Dragon,C,Elemental,ELE-001,10001
Pebble Imp,Common,Elemental,ELE-002,10002
Void Matriarch,Secret Rare,Elemental,ELE-090,10090
`

const astralCSV = `cardname,cardrarity,cardset,cardcode,cardid
Dawn Herald,Starlight,Astral,AST-001,20001
Mole Dragon,UR,Astral,AST-044,20044
`

func newTestCatalog(t *testing.T, files map[string]string) *Catalog {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))

	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	sets := map[string]int{"Elemental": 1, "Astral": 2}
	return New(dir, sets, repositories.NewPrintingRepository(db.BunDB()))
}

func TestReload(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"elemental.csv": elementalCSV,
		"astral.csv":    astralCSV,
		"notes.txt":     "not a card file",
	})
	ctx := context.Background()
	require.NoError(t, c.Reload(ctx))
	require.Len(t, c.All(), 5)

	id := models.PrintingKey("Mole Dragon", "C", "Elemental", "ELE-001", "10001")
	p, ok := c.Get(id)
	require.True(t, ok)
	require.Equal(t, "Mole Dragon", p.Name)
	require.Equal(t, models.RarityCommon, p.Rarity)
	require.Equal(t, 1, p.SetID)
	require.True(t, p.Craftable)

	// Starlight printings exist but are never craftable.
	star, ok := c.Get(models.PrintingKey("Dawn Herald", "Starlight", "Astral", "AST-001", "20001"))
	require.True(t, ok)
	require.False(t, star.Craftable)
}

func TestReloadSyncsDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "elemental.csv"), []byte(elementalCSV), 0o644))

	repo := repositories.NewPrintingRepository(db.BunDB())
	c := New(dir, map[string]int{"Elemental": 1}, repo)
	require.NoError(t, c.Reload(ctx))

	id := models.PrintingKey("Mole Dragon", "C", "Elemental", "ELE-001", "10001")
	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Mole Dragon", stored.Name)
	require.Equal(t, models.RarityCommon, stored.Rarity)
}

func TestReloadRejectsMissingColumns(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"broken.csv": "cardname,cardset\nMole Dragon,Elemental\n",
	})
	err := c.Reload(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cardrarity")
}

func TestReloadFallbackSetAndDedupe(t *testing.T) {
	// Empty cardset falls back to the file name; the same printing listed
	// twice collapses to one entry.
	body := "cardname,cardrarity,cardset,cardcode,cardid\n" +
		"Mole Dragon,C,,ELE-001,10001\n" +
		"Mole Dragon,C,,ELE-001,10001\n"
	c := newTestCatalog(t, map[string]string{"elemental.csv": body})
	require.NoError(t, c.Reload(context.Background()))
	require.Len(t, c.All(), 1)
	require.Equal(t, "elemental", c.All()[0].SetName)
	require.Equal(t, 1, c.All()[0].SetID)
}

func TestResolve(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"elemental.csv": elementalCSV,
		"astral.csv":    astralCSV,
	})
	require.NoError(t, c.Reload(context.Background()))

	// The same card printed in two sets.
	both := c.Resolve("mole dragon", "")
	require.Len(t, both, 2)

	narrowed := c.Resolve("Mole Dragon", "astral")
	require.Len(t, narrowed, 1)
	require.Equal(t, models.RarityUltra, narrowed[0].Rarity)

	require.Empty(t, c.Resolve("No Such Card", ""))
}

func TestSearch(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"elemental.csv": elementalCSV,
		"astral.csv":    astralCSV,
	})
	require.NoError(t, c.Reload(context.Background()))

	results := c.Search("matriarch", 0)
	require.NotEmpty(t, results)
	require.Equal(t, "Void Matriarch", results[0].Name)

	// Set name participates in matching.
	astral := c.Search("astral", 10)
	require.Len(t, astral, 2)

	limited := c.Search("mole", 1)
	require.Len(t, limited, 1)

	require.Empty(t, c.Search("   ", 10))
}

func TestSetID(t *testing.T) {
	c := newTestCatalog(t, nil)
	id, ok := c.SetID(" elemental ")
	require.True(t, ok)
	require.Equal(t, 1, id)

	_, ok = c.SetID("unknown")
	require.False(t, ok)
}
