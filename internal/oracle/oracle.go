// Package oracle adapts external price feeds into a uniform scaled-price
// lookup. The gateway holds no position state and never retries: a feed
// miss is reported to the caller, who owns any retry policy.
package oracle

import (
	"context"
	"errors"

	"synapse/internal/domain"
)

// ErrNoPrice is returned when the feed has no data for the requested asset.
var ErrNoPrice = errors.New("no price data for asset")

// Oracle is the price-feed capability consumed by the lifecycle controller
// and the liquidation scanner. Prices are scaled integers with Decimals()
// decimal places; timestamps are Unix seconds.
type Oracle interface {
	// LastPrice returns the most recent quote for the asset, or ErrNoPrice
	// when the feed has no data for it.
	LastPrice(ctx context.Context, asset string) (*domain.PriceQuote, error)

	// TWAP returns the time-weighted average price over the last records
	// feed entries for the asset.
	TWAP(ctx context.Context, asset string, records int) (int64, error)

	// CrossPrice returns the price of base quoted in quote, derived from
	// the two assets' latest feed entries. The quote timestamp is the older
	// of the two legs.
	CrossPrice(ctx context.Context, base, quote string) (*domain.PriceQuote, error)

	// Decimals returns the feed's price scale.
	Decimals() int

	// Resolution returns the feed's update cadence in seconds.
	Resolution() int64

	// LastTimestamp returns the Unix time of the feed's most recent update.
	LastTimestamp(ctx context.Context) (int64, error)

	// Version identifies the gateway implementation and feed revision.
	Version() string
}
