package registry

import (
	"testing"

	"MarketPulse/internal/domain/models"

	"github.com/stretchr/testify/require"
)

func TestChain_AlwaysEndsInMock(t *testing.T) {
	r := New(map[models.Category][]models.ProviderID{
		models.CategoryCrypto: {models.ProviderCoinGecko},
		models.CategoryForex:  {models.ProviderMock, models.ProviderFinnhub},
	}, nil)

	require.Equal(t, []models.ProviderID{models.ProviderCoinGecko, models.ProviderMock},
		r.Chain(models.CategoryCrypto, "BTC"))
	// entries after MOCK are unreachable and dropped
	require.Equal(t, []models.ProviderID{models.ProviderMock}, r.Chain(models.CategoryForex, "EURUSD"))
	require.Equal(t, []models.ProviderID{models.ProviderMock}, r.Chain(models.Category("unknown"), "X"))

	for _, c := range models.Categories {
		chain := r.Chain(c, "ANY")
		require.Equal(t, models.ProviderMock, chain[len(chain)-1], "category %s", c)
	}
}

func TestChain_InstrumentOverrideAndCopy(t *testing.T) {
	r := FromConfig(nil, map[string][]string{"aapl": {"twelvedata"}})

	chain := r.Chain(models.CategoryStocks, "AAPL")
	require.Equal(t, []models.ProviderID{models.ProviderTwelveData, models.ProviderMock}, chain)
	require.Equal(t, models.ProviderFinnhub, r.Preferred(models.CategoryStocks, "MSFT"))

	chain[0] = models.ProviderBinance
	require.Equal(t, models.ProviderTwelveData, r.Preferred(models.CategoryStocks, "AAPL"))
}

func TestFromConfig_NormalizesCategoryAliases(t *testing.T) {
	r := FromConfig(map[string][]string{"criptomonedas": {"coingecko", "binance"}}, nil)
	require.Equal(t,
		[]models.ProviderID{models.ProviderCoinGecko, models.ProviderBinance, models.ProviderMock},
		r.Chain(models.CategoryCrypto, "ETH"))
}
