package catalog

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/duelhall/mambot/mambot/database/models"
)

// printingSource implements fuzzy.Source over the catalog index.
type printingSource []*models.Printing

func (s printingSource) Len() int { return len(s) }

func (s printingSource) String(i int) string {
	return strings.ToLower(s[i].Name + " " + s[i].SetName)
}

// Search fuzzy-matches printings by name and set, best matches first.
// Results are cached per (query, limit) until the next Reload.
func (c *Catalog) Search(query string, limit int) []*models.Printing {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 25
	}

	cacheKey := fmt.Sprintf("%s|%d", query, limit)
	if cached, ok := c.searchCache.Get(cacheKey); ok {
		return cached.([]*models.Printing)
	}

	c.mu.RLock()
	source := printingSource(c.index)
	matches := fuzzy.FindFrom(query, source)
	out := make([]*models.Printing, 0, limit)
	for _, match := range matches {
		out = append(out, source[match.Index])
		if len(out) == limit {
			break
		}
	}
	c.mu.RUnlock()

	c.searchCache.Add(cacheKey, out)
	return out
}
