package provider

import (
	"context"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/simulator"
)

// Mock is the terminal chain entry. It never fails and never touches the network.
type Mock struct {
	sim *simulator.Simulator
}

func NewMock(sim *simulator.Simulator) *Mock {
	return &Mock{sim: sim}
}

func (m *Mock) ID() models.ProviderID { return models.ProviderMock }

func (m *Mock) Fetch(_ context.Context, req models.Request) (*models.Quote, error) {
	md := m.sim.Generate(req.Symbol, req.Category, 0)
	return QuoteFromSnapshot(md), nil
}

// QuoteFromSnapshot wraps a simulated snapshot as a synthetic quote.
func QuoteFromSnapshot(md models.MarketData) *models.Quote {
	open := md.CurrentPrice
	if len(md.PriceHistory) > 0 {
		open = md.PriceHistory[0].Price
	}
	return &models.Quote{
		Provider:      models.ProviderMock,
		Symbol:        md.Symbol,
		Name:          md.Name,
		Price:         md.CurrentPrice,
		Open:          open,
		High:          md.High24h,
		Low:           md.Low24h,
		Change:        md.Change24h,
		ChangePercent: md.ChangePercent24h,
		History:       md.PriceHistory,
		ReceivedAt:    md.LastUpdated,
		Synthetic:     true,
		Snapshot:      &md,
	}
}
