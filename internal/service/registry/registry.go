// Package registry maps instrument categories, and optionally single instruments,
// to the ordered list of providers asked for a price.
package registry

import (
	"strings"

	"MarketPulse/internal/domain/models"
)

// DefaultChains is used for every category the configuration leaves out.
var DefaultChains = map[models.Category][]models.ProviderID{
	models.CategoryCrypto:      {models.ProviderBinance, models.ProviderCoinGecko, models.ProviderMock},
	models.CategoryForex:       {models.ProviderTwelveData, models.ProviderFinnhub, models.ProviderMock},
	models.CategoryIndices:     {models.ProviderTwelveData, models.ProviderFinnhub, models.ProviderMock},
	models.CategoryCommodities: {models.ProviderTwelveData, models.ProviderFinnhub, models.ProviderMock},
	models.CategoryStocks:      {models.ProviderFinnhub, models.ProviderMock},
	models.CategorySynthetic:   {models.ProviderMock},
	models.CategoryDerivatives: {models.ProviderMock},
	models.CategoryBaskets:     {models.ProviderMock},
}

// Registry is immutable after New.
type Registry struct {
	chains      map[models.Category][]models.ProviderID
	instruments map[string][]models.ProviderID
}

// New merges chains over DefaultChains. Every stored chain ends in MOCK.
func New(chains map[models.Category][]models.ProviderID, instruments map[string][]models.ProviderID) *Registry {
	r := &Registry{
		chains:      make(map[models.Category][]models.ProviderID, len(DefaultChains)),
		instruments: make(map[string][]models.ProviderID, len(instruments)),
	}
	for c, chain := range DefaultChains {
		r.chains[c] = terminate(chain)
	}
	for c, chain := range chains {
		r.chains[c] = terminate(chain)
	}
	for sym, chain := range instruments {
		r.instruments[instrumentKey(sym)] = terminate(chain)
	}
	return r
}

// FromConfig builds a Registry from string-keyed configuration maps.
func FromConfig(chains, instruments map[string][]string) *Registry {
	cc := make(map[models.Category][]models.ProviderID, len(chains))
	for k, ids := range chains {
		cc[models.NormalizeCategory(k)] = parseIDs(ids)
	}
	ic := make(map[string][]models.ProviderID, len(instruments))
	for k, ids := range instruments {
		ic[k] = parseIDs(ids)
	}
	return New(cc, ic)
}

// Chain returns a copy of the provider chain for symbol within category.
// An instrument override wins over the category chain; unknown categories get [MOCK].
func (r *Registry) Chain(category models.Category, symbol string) []models.ProviderID {
	chain, ok := r.instruments[instrumentKey(symbol)]
	if !ok {
		chain, ok = r.chains[category]
	}
	if !ok {
		return []models.ProviderID{models.ProviderMock}
	}
	out := make([]models.ProviderID, len(chain))
	copy(out, chain)
	return out
}

// Preferred is the first provider of the chain.
func (r *Registry) Preferred(category models.Category, symbol string) models.ProviderID {
	return r.Chain(category, symbol)[0]
}

func terminate(chain []models.ProviderID) []models.ProviderID {
	out := make([]models.ProviderID, 0, len(chain)+1)
	for _, id := range chain {
		if id == models.ProviderMock {
			break
		}
		if id != "" {
			out = append(out, id)
		}
	}
	return append(out, models.ProviderMock)
}

func parseIDs(ids []string) []models.ProviderID {
	out := make([]models.ProviderID, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ParseProviderID(id))
	}
	return out
}

func instrumentKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
