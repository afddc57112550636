package models

import "strings"

// Category groups instruments that share providers, TTLs and simulation profiles.
type Category string

const (
	CategoryCrypto      Category = "crypto"
	CategoryForex       Category = "forex"
	CategoryIndices     Category = "indices"
	CategoryCommodities Category = "commodities"
	CategorySynthetic   Category = "synthetic"
	CategoryStocks      Category = "stocks"
	CategoryDerivatives Category = "derivatives"
	CategoryBaskets     Category = "baskets"
)

// Categories lists every canonical category.
var Categories = []Category{
	CategoryCrypto,
	CategoryForex,
	CategoryIndices,
	CategoryCommodities,
	CategorySynthetic,
	CategoryStocks,
	CategoryDerivatives,
	CategoryBaskets,
}

var categoryAliases = map[string]Category{
	"crypto":          CategoryCrypto,
	"cripto":          CategoryCrypto,
	"criptomonedas":   CategoryCrypto,
	"cryptocurrency":  CategoryCrypto,
	"forex":           CategoryForex,
	"divisas":         CategoryForex,
	"fx":              CategoryForex,
	"currencies":      CategoryForex,
	"indices":         CategoryIndices,
	"index":           CategoryIndices,
	"indexes":         CategoryIndices,
	"commodities":     CategoryCommodities,
	"commodity":       CategoryCommodities,
	"materias-primas": CategoryCommodities,
	"materias_primas": CategoryCommodities,
	"synthetic":       CategorySynthetic,
	"synthetics":      CategorySynthetic,
	"sinteticos":      CategorySynthetic,
	"volatility":      CategorySynthetic,
	"boom":            CategorySynthetic,
	"crash":           CategorySynthetic,
	"boom-crash":      CategorySynthetic,
	"step":            CategorySynthetic,
	"stocks":          CategoryStocks,
	"stock":           CategoryStocks,
	"acciones":        CategoryStocks,
	"equities":        CategoryStocks,
	"derivatives":     CategoryDerivatives,
	"derivados":       CategoryDerivatives,
	"baskets":         CategoryBaskets,
	"basket":          CategoryBaskets,
	"cestas":          CategoryBaskets,
}

// NormalizeCategory maps aliases (including the Spanish names used by upstream callers)
// onto a canonical Category. Unknown values are lowercased and returned as-is.
func NormalizeCategory(raw string) Category {
	k := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := categoryAliases[k]; ok {
		return c
	}
	// volatility indices arrive as e.g. "volatility-75" or "boom_1000"
	for _, prefix := range []string{"volatility", "boom", "crash", "step"} {
		if strings.HasPrefix(k, prefix) {
			return CategorySynthetic
		}
	}
	return Category(k)
}

// IsKnown reports whether c is one of the canonical categories.
func (c Category) IsKnown() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Key returns the registry/cache key for a symbol within a category.
func Key(category Category, symbol string) string {
	return string(category) + ":" + strings.ToLower(strings.TrimSpace(symbol))
}
