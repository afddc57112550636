package stream

import (
	"math"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
)

// HistoryInterval is the minimum spacing between streamed history points.
const HistoryInterval = time.Minute

// Delta is what a single wire tick tells us about an instrument.
type Delta struct {
	Price         float64
	High          float64
	Low           float64
	ChangePercent float64
	HasRange      bool
	HasChange     bool
}

// Mapper extracts a Delta from a decoded provider frame. ok is false for frames
// that carry no price (acks, pings, status events).
type Mapper func(payload any) (d Delta, ok bool)

var mappers = map[models.ProviderID]Mapper{
	models.ProviderBinance:    MapBinanceTicker,
	models.ProviderTwelveData: MapTwelveDataPrice,
	models.ProviderFinnhub:    MapFinnhubTrade,
}

// MapperFor returns the wire mapper of provider, if it streams.
func MapperFor(id models.ProviderID) (Mapper, bool) {
	m, ok := mappers[id]
	return m, ok
}

// MapBinanceTicker reads a 24hrTicker push: c=last, h=high, l=low, P=change percent.
func MapBinanceTicker(payload any) (Delta, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return Delta{}, false
	}
	if e, _ := obj["e"].(string); e != "" && e != "24hrTicker" {
		return Delta{}, false
	}
	price, ok := number(obj["c"])
	if !ok || price <= 0 {
		return Delta{}, false
	}
	d := Delta{Price: price}
	high, hok := number(obj["h"])
	low, lok := number(obj["l"])
	if hok && lok && high > 0 && low > 0 {
		d.High, d.Low, d.HasRange = high, low, true
	}
	if p, ok := number(obj["P"]); ok && p > -100 {
		d.ChangePercent, d.HasChange = p, true
	}
	return d, true
}

// MapTwelveDataPrice reads {"event":"price","price":...}; other events are ignored.
func MapTwelveDataPrice(payload any) (Delta, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return Delta{}, false
	}
	if ev, _ := obj["event"].(string); ev != "price" {
		return Delta{}, false
	}
	price, ok := number(obj["price"])
	if !ok || price <= 0 {
		return Delta{}, false
	}
	d := Delta{Price: price}
	high, hok := number(obj["day_high"])
	low, lok := number(obj["day_low"])
	if hok && lok && high > 0 && low > 0 {
		d.High, d.Low, d.HasRange = high, low, true
	}
	return d, true
}

// MapFinnhubTrade reads {"type":"trade","data":[{"p":...}]} and keeps the newest trade.
func MapFinnhubTrade(payload any) (Delta, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return Delta{}, false
	}
	if typ, _ := obj["type"].(string); typ != "trade" {
		return Delta{}, false
	}
	trades, _ := obj["data"].([]any)
	for i := len(trades) - 1; i >= 0; i-- {
		t, ok := trades[i].(map[string]any)
		if !ok {
			continue
		}
		if p, ok := number(t["p"]); ok && p > 0 {
			return Delta{Price: p}, true
		}
	}
	return Delta{}, false
}

// Apply folds d onto prev, producing the next live snapshot.
func Apply(prev models.MarketData, d Delta, now time.Time) models.MarketData {
	next := prev.Clone()
	open := prev.CurrentPrice - prev.Change24h

	next.CurrentPrice = d.Price
	if d.HasChange && 1+d.ChangePercent/100 > 0 {
		next.ChangePercent24h = d.ChangePercent
		next.Change24h = d.Price - d.Price/(1+d.ChangePercent/100)
	} else if open > 0 {
		next.Change24h = d.Price - open
		next.ChangePercent24h = next.Change24h / open * 100
	}
	if d.HasRange {
		next.High24h, next.Low24h = d.High, d.Low
	}
	next.WidenRange()

	last, ok := next.LastPoint()
	if !ok || now.Sub(last.Timestamp) >= HistoryInterval {
		next.AppendHistory(models.PricePoint{Timestamp: now, Price: d.Price})
	}
	next.LastUpdated = now
	next.IsRealTime = true
	return next
}

// number accepts JSON numbers and the string-encoded decimals some feeds send.
// NaN and infinities are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		var err error
		if f, err = strconv.ParseFloat(n, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
