package oracle

import (
	"context"
	"sync"

	"synapse/internal/domain"
)

// Compile-time interface check.
var _ Oracle = (*StaticOracle)(nil)

// StaticOracle is a deterministic Oracle for tests and demos. Prices and
// timestamps are set explicitly and returned verbatim, so staleness and
// liquidation scenarios can be scripted exactly.
type StaticOracle struct {
	mu       sync.RWMutex
	quotes   map[string]domain.PriceQuote
	history  map[string][]int64 // per-asset price history for TWAP
	decimals int
}

// NewStaticOracle creates an empty StaticOracle with the given price scale.
func NewStaticOracle(decimals int) *StaticOracle {
	return &StaticOracle{
		quotes:   make(map[string]domain.PriceQuote),
		history:  make(map[string][]int64),
		decimals: decimals,
	}
}

// SetPrice records a quote for the asset. The previous price, if any, is
// retained in the TWAP history.
func (o *StaticOracle) SetPrice(asset string, price, timestamp int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[asset] = domain.PriceQuote{Price: price, Timestamp: timestamp}
	o.history[asset] = append(o.history[asset], price)
}

// DropPrice removes the asset from the feed, so lookups return ErrNoPrice.
func (o *StaticOracle) DropPrice(asset string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.quotes, asset)
}

// LastPrice returns the configured quote for the asset.
func (o *StaticOracle) LastPrice(_ context.Context, asset string) (*domain.PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[asset]
	if !ok {
		return nil, ErrNoPrice
	}
	return &q, nil
}

// TWAP averages the last records prices set for the asset, truncating the
// mean toward zero.
func (o *StaticOracle) TWAP(_ context.Context, asset string, records int) (int64, error) {
	if records <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	prices := o.history[asset]
	if len(prices) == 0 {
		return 0, ErrNoPrice
	}
	if records > len(prices) {
		records = len(prices)
	}
	var sum int64
	for _, p := range prices[len(prices)-records:] {
		sum += p
	}
	return sum / int64(records), nil
}

// CrossPrice derives base/quote from the two configured quotes. The result
// keeps the feed's decimal scale; the timestamp is the older leg's.
func (o *StaticOracle) CrossPrice(ctx context.Context, base, quote string) (*domain.PriceQuote, error) {
	b, err := o.LastPrice(ctx, base)
	if err != nil {
		return nil, err
	}
	q, err := o.LastPrice(ctx, quote)
	if err != nil {
		return nil, err
	}
	price, err := scaleRatio(b.Price, q.Price, o.decimals)
	if err != nil {
		return nil, err
	}
	ts := b.Timestamp
	if q.Timestamp < ts {
		ts = q.Timestamp
	}
	return &domain.PriceQuote{Price: price, Timestamp: ts}, nil
}

// Decimals returns the configured price scale.
func (o *StaticOracle) Decimals() int { return o.decimals }

// Resolution returns 0: static prices have no update cadence.
func (o *StaticOracle) Resolution() int64 { return 0 }

// LastTimestamp returns the newest timestamp across all configured quotes.
func (o *StaticOracle) LastTimestamp(_ context.Context) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.quotes) == 0 {
		return 0, ErrNoPrice
	}
	var latest int64
	for _, q := range o.quotes {
		if q.Timestamp > latest {
			latest = q.Timestamp
		}
	}
	return latest, nil
}

// Version identifies the test double.
func (o *StaticOracle) Version() string { return "static/1" }
