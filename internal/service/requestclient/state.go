package requestclient

import (
	"time"

	"MarketPulse/internal/domain/models"
)

// attempt is the whole retry/failover state of one Fetch. Transitions return new values.
type attempt struct {
	chain       []models.ProviderID
	index       int
	retriesLeft int
	backoff     time.Duration
	// tries counts requests sent to the current provider.
	tries int
}

func newAttempt(chain []models.ProviderID, cfg Config) attempt {
	return attempt{
		chain:       chain,
		retriesLeft: cfg.MaxRetries,
		backoff:     cfg.InitialBackoff,
	}
}

func (a attempt) exhausted() bool {
	return a.index >= len(a.chain)
}

func (a attempt) provider() models.ProviderID {
	if a.exhausted() {
		return ""
	}
	return a.chain[a.index]
}

// next is the provider a failover would move to, or "" at the end of the chain.
func (a attempt) next() models.ProviderID {
	if a.index+1 >= len(a.chain) {
		return ""
	}
	return a.chain[a.index+1]
}

func (a attempt) canRetry() bool {
	return a.retriesLeft > 0
}

// retry stays on the current provider with one retry fewer and a doubled, capped backoff.
func (a attempt) retry(maxBackoff time.Duration) attempt {
	a.retriesLeft--
	a.tries++
	a.backoff *= 2
	if a.backoff > maxBackoff {
		a.backoff = maxBackoff
	}
	return a
}

// failover moves to the next provider and resets the retry budget.
func (a attempt) failover(cfg Config) attempt {
	a.index++
	a.retriesLeft = cfg.MaxRetries
	a.backoff = cfg.InitialBackoff
	a.tries = 0
	return a
}
