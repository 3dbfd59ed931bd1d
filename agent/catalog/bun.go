package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

type Config struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// pincodeRow maps the marketplace's serviceability table.
type pincodeRow struct {
	bun.BaseModel `bun:"table:pincodes"`

	Pincode     string `bun:"pincode,pk"`
	Serviceable bool   `bun:"is_serviceable"`
}

// serviceRow maps the service catalog table. Subcategory rows carry a
// non-empty parent.
type serviceRow struct {
	bun.BaseModel `bun:"table:services"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name"`
	Parent   string `bun:"parent"`
	Keywords string `bun:"keywords"` // comma separated synonyms
	Active   bool   `bun:"is_active"`
}

// BunCatalog answers serviceability and service-type lookups from the
// marketplace database.
type BunCatalog struct {
	db *bun.DB
}

func NewBunCatalog(cfg Config) (*BunCatalog, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("catalog dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunCatalog{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (c *BunCatalog) Close() error {
	return c.db.Close()
}

func (c *BunCatalog) IsServiceable(ctx context.Context, pincode string) (bool, error) {
	pin := strings.TrimSpace(pincode)
	if pin == "" {
		return false, nil
	}

	var row pincodeRow
	err := c.db.NewSelect().
		Model(&row).
		Where("pincode = ?", pin).
		Where("is_serviceable = TRUE").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pincode %s: %w", pin, err)
	}
	return true, nil
}

func (c *BunCatalog) ResolveServiceType(ctx context.Context, text string) (contractx.ServiceResolution, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return contractx.ServiceResolution{}, nil
	}

	var rows []serviceRow
	if err := c.db.NewSelect().
		Model(&rows).
		Where("is_active = TRUE").
		Scan(ctx); err != nil {
		return contractx.ServiceResolution{}, fmt.Errorf("query services: %w", err)
	}

	matched, term, ok := bestMatch(rows, needle)
	if !ok {
		return contractx.ServiceResolution{}, nil
	}

	if matched.Parent != "" {
		return contractx.ServiceResolution{
			Category: matched.Parent + "/" + matched.Name,
			Term:     term,
			Matched:  true,
		}, nil
	}

	subs := make([]string, 0, 2)
	for _, r := range rows {
		if r.Parent == matched.Name {
			subs = append(subs, r.Name)
		}
	}
	if len(subs) > 0 {
		sort.Strings(subs)
		return contractx.ServiceResolution{
			Category:  matched.Name,
			Term:      term,
			Matched:   true,
			Ambiguous: true,
			Options:   subs,
		}, nil
	}
	return contractx.ServiceResolution{Category: matched.Name, Term: term, Matched: true}, nil
}

// bestMatch picks the service whose longest keyword appears in the text,
// returning the keyword that matched.
func bestMatch(rows []serviceRow, needle string) (serviceRow, string, bool) {
	var (
		best    serviceRow
		bestKw  string
		bestLen int
		found   bool
	)
	for _, r := range rows {
		for _, kw := range strings.Split(r.Keywords, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(needle, kw) && len(kw) > bestLen {
				best = r
				bestKw = kw
				bestLen = len(kw)
				found = true
			}
		}
	}
	return best, bestKw, found
}
