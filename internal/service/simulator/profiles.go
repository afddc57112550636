package simulator

import (
	"strings"

	"MarketPulse/internal/domain/models"
)

// Profile shapes the random walk for a category.
type Profile struct {
	Base          float64
	Volatility    float64
	TrendStrength float64
}

var profiles = map[models.Category]Profile{
	models.CategoryCrypto:      {Base: 1000, Volatility: 0.03, TrendStrength: 0.6},
	models.CategoryForex:       {Base: 1.2, Volatility: 0.004, TrendStrength: 0.3},
	models.CategoryIndices:     {Base: 5000, Volatility: 0.01, TrendStrength: 0.4},
	models.CategoryCommodities: {Base: 80, Volatility: 0.015, TrendStrength: 0.4},
	models.CategorySynthetic:   {Base: 1000, Volatility: 0.02, TrendStrength: 0.2},
	models.CategoryStocks:      {Base: 150, Volatility: 0.015, TrendStrength: 0.5},
	models.CategoryDerivatives: {Base: 500, Volatility: 0.02, TrendStrength: 0.3},
	models.CategoryBaskets:     {Base: 1000, Volatility: 0.01, TrendStrength: 0.3},
}

func profileFor(c models.Category) Profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[models.CategoryCrypto]
}

type instrument struct {
	name string
	base float64
}

var knownInstruments = map[string]instrument{
	"BTC":      {"Bitcoin", 65000},
	"ETH":      {"Ethereum", 3200},
	"BNB":      {"BNB", 580},
	"SOL":      {"Solana", 150},
	"XRP":      {"XRP", 0.6},
	"ADA":      {"Cardano", 0.45},
	"DOGE":     {"Dogecoin", 0.12},
	"DOT":      {"Polkadot", 7},
	"EURUSD":   {"EUR/USD", 1.08},
	"GBPUSD":   {"GBP/USD", 1.27},
	"USDJPY":   {"USD/JPY", 150},
	"AUDUSD":   {"AUD/USD", 0.66},
	"USDCHF":   {"USD/CHF", 0.9},
	"USDCAD":   {"USD/CAD", 1.36},
	"SPX":      {"S&P 500", 5200},
	"US500":    {"S&P 500", 5200},
	"NDX":      {"Nasdaq 100", 18000},
	"DJI":      {"Dow Jones", 39000},
	"DAX":      {"DAX 40", 18000},
	"FTSE":     {"FTSE 100", 8000},
	"XAUUSD":   {"Gold", 2300},
	"GOLD":     {"Gold", 2300},
	"XAGUSD":   {"Silver", 27},
	"WTI":      {"Crude Oil WTI", 80},
	"BRENT":    {"Brent Crude", 84},
	"AAPL":     {"Apple Inc.", 190},
	"MSFT":     {"Microsoft Corp.", 420},
	"TSLA":     {"Tesla Inc.", 180},
	"AMZN":     {"Amazon.com Inc.", 180},
	"R_10":     {"Volatility 10 Index", 6000},
	"R_25":     {"Volatility 25 Index", 3000},
	"R_50":     {"Volatility 50 Index", 250},
	"R_75":     {"Volatility 75 Index", 90000},
	"R_100":    {"Volatility 100 Index", 1500},
	"1HZ100V":  {"Volatility 100 (1s) Index", 900},
	"BOOM1000": {"Boom 1000 Index", 12000},
	"CRASH500": {"Crash 500 Index", 4000},
}

func lookupInstrument(symbol string) (instrument, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("/", "", "-", "").Replace(s)
	if in, ok := knownInstruments[s]; ok {
		return in, true
	}
	for _, quote := range []string{"USDT", "USD"} {
		if trimmed, ok := strings.CutSuffix(s, quote); ok && trimmed != "" {
			if in, ok := knownInstruments[trimmed]; ok {
				return in, true
			}
		}
	}
	return instrument{}, false
}

var syntheticPrefixes = []string{"R_", "1HZ", "BOOM", "CRASH", "STPRNG", "JD"}

// InferCategory guesses a category from a display name and symbol. It only exists for
// snapshots produced before Category was carried on MarketData.
func InferCategory(name, symbol string) models.Category {
	n := strings.ToLower(name)
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(n, "basket"):
		return models.CategoryBaskets
	case strings.Contains(n, "volatility"), strings.Contains(n, "boom"), strings.Contains(n, "crash"):
		return models.CategorySynthetic
	case strings.Contains(n, "inc.") || strings.Contains(n, "corp"):
		return models.CategoryStocks
	}
	for _, p := range syntheticPrefixes {
		if strings.HasPrefix(s, p) {
			return models.CategorySynthetic
		}
	}
	switch {
	case strings.HasPrefix(s, "XAU"), strings.HasPrefix(s, "XAG"), s == "WTI", s == "BRENT", s == "GOLD":
		return models.CategoryCommodities
	case strings.HasSuffix(s, "USDT"):
		return models.CategoryCrypto
	case strings.Contains(s, "/") || (len(s) == 6 && isLetters(s) && !strings.HasSuffix(s, "USDT")):
		return models.CategoryForex
	}
	return models.CategoryCrypto
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
