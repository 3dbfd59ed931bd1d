package catalog

import (
	"context"
	"sort"
	"strings"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

// StaticCatalog resolves services and pincodes from in-memory tables,
// mirroring the seed data the marketplace ships for development.
type StaticCatalog struct {
	// category -> subcategories (empty slice means no disambiguation needed)
	services map[string][]string
	// synonym -> canonical category or "category/subcategory"
	synonyms map[string]string
	pincodes map[string]struct{}
}

func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{
		services: map[string][]string{
			"ac_service":    nil,
			"plumbing":      nil,
			"electrical":    nil,
			"carpentry":     nil,
			"pest_control":  nil,
			"home_cleaning": {"deep_cleaning", "regular_cleaning"},
			"painting":      {"interior_painting", "exterior_painting"},
		},
		synonyms: map[string]string{
			"ac":                "ac_service",
			"ac service":       "ac_service",
			"ac repair":        "ac_service",
			"air conditioner":  "ac_service",
			"air conditioning": "ac_service",
			"plumber":          "plumbing",
			"plumbing":         "plumbing",
			"leak":             "plumbing",
			"electrician":      "electrical",
			"electrical":       "electrical",
			"wiring":           "electrical",
			"carpenter":        "carpentry",
			"carpentry":        "carpentry",
			"pest":             "pest_control",
			"pest control":     "pest_control",
			"cleaning":         "home_cleaning",
			"home cleaning":    "home_cleaning",
			"deep cleaning":    "home_cleaning/deep_cleaning",
			"regular cleaning": "home_cleaning/regular_cleaning",
			"painting":         "painting",
			"paint":            "painting",
			"interior painting": "painting/interior_painting",
			"exterior painting": "painting/exterior_painting",
			"interior":          "painting/interior_painting",
			"exterior":          "painting/exterior_painting",
		},
		pincodes: make(map[string]struct{}),
	}
	for _, pin := range []string{
		"110001", "110002", "110016", "122001", "122002",
		"201301", "400001", "400050", "560001", "560038",
	} {
		c.pincodes[pin] = struct{}{}
	}
	return c
}

func (c *StaticCatalog) IsServiceable(_ context.Context, pincode string) (bool, error) {
	_, ok := c.pincodes[strings.TrimSpace(pincode)]
	return ok, nil
}

func (c *StaticCatalog) ResolveServiceType(_ context.Context, text string) (contractx.ServiceResolution, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return contractx.ServiceResolution{}, nil
	}

	target, ok := c.synonyms[needle]
	term := needle
	if !ok {
		// substring pass for phrases like "book an ac service at home",
		// preferring the longest matching synonym
		best := 0
		for syn, mapped := range c.synonyms {
			if strings.Contains(needle, syn) && len(syn) > best {
				best = len(syn)
				target = mapped
				term = syn
				ok = true
			}
		}
	}
	if !ok {
		return contractx.ServiceResolution{}, nil
	}

	if category, sub, found := strings.Cut(target, "/"); found {
		return contractx.ServiceResolution{Category: category + "/" + sub, Term: term, Matched: true}, nil
	}

	subs := c.services[target]
	if len(subs) > 0 {
		options := append([]string(nil), subs...)
		sort.Strings(options)
		return contractx.ServiceResolution{
			Category:  target,
			Term:      term,
			Matched:   true,
			Ambiguous: true,
			Options:   options,
		}, nil
	}
	return contractx.ServiceResolution{Category: target, Term: term, Matched: true}, nil
}
