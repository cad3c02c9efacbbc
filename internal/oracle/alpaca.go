package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"synapse/internal/domain"
)

// Compile-time interface check.
var _ Oracle = (*AlpacaOracle)(nil)

// alpacaResolution is the crypto feed's nominal update cadence in seconds.
const alpacaResolution = 60

// AlpacaOracle serves prices from the Alpaca crypto market-data feed,
// scaled to the configured decimal count. Assets are symbolic names
// ("BTC", "ETH"); the gateway maps them to USD pairs on the feed.
type AlpacaOracle struct {
	client   *marketdata.Client
	decimals int
	log      *slog.Logger
}

// NewAlpacaOracle creates a gateway backed by the Alpaca crypto feed.
// An empty dataURL uses the client's default endpoint.
func NewAlpacaOracle(apiKey, apiSecret, dataURL string, decimals int, log *slog.Logger) *AlpacaOracle {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaOracle{
		client:   marketdata.NewClient(opts),
		decimals: decimals,
		log:      log,
	}
}

// pair maps a symbolic asset name to its USD pair on the feed.
func pair(asset string) string { return asset + "/USD" }

// LastPrice fetches the latest crypto trade for the asset and scales it.
func (o *AlpacaOracle) LastPrice(ctx context.Context, asset string) (*domain.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if asset == "" {
		return nil, domain.ErrInvalidAsset
	}

	trade, err := o.client.GetLatestCryptoTrade(pair(asset), marketdata.GetLatestCryptoTradeRequest{})
	if err != nil {
		o.log.Warn("latest trade lookup failed", "asset", asset, "error", err)
		return nil, fmt.Errorf("latest trade for %s: %w", asset, err)
	}
	if trade == nil {
		return nil, ErrNoPrice
	}

	price, err := scalePrice(trade.Price, o.decimals)
	if err != nil {
		return nil, fmt.Errorf("scaling price for %s: %w", asset, err)
	}
	return &domain.PriceQuote{Price: price, Timestamp: trade.Timestamp.Unix()}, nil
}

// TWAP averages the closes of the last records one-minute bars.
func (o *AlpacaOracle) TWAP(ctx context.Context, asset string, records int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if records <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	end := time.Now()
	bars, err := o.client.GetCryptoBars(pair(asset), marketdata.GetCryptoBarsRequest{
		TimeFrame:  marketdata.OneMin,
		Start:      end.Add(-time.Duration(records) * time.Minute),
		End:        end,
		TotalLimit: records,
	})
	if err != nil {
		o.log.Warn("bar lookup failed", "asset", asset, "records", records, "error", err)
		return 0, fmt.Errorf("bars for %s: %w", asset, err)
	}
	if len(bars) == 0 {
		return 0, ErrNoPrice
	}

	var sum float64
	for _, b := range bars {
		sum += b.Close
	}
	return scalePrice(sum/float64(len(bars)), o.decimals)
}

// CrossPrice derives base/quote from the two pairs' latest trades.
func (o *AlpacaOracle) CrossPrice(ctx context.Context, base, quote string) (*domain.PriceQuote, error) {
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
func (o *AlpacaOracle) Decimals() int { return o.decimals }

// Resolution returns the feed's update cadence in seconds.
func (o *AlpacaOracle) Resolution() int64 { return alpacaResolution }

// LastTimestamp reports the timestamp of the feed's most recent BTC trade,
// used as a liveness probe for the feed as a whole.
func (o *AlpacaOracle) LastTimestamp(ctx context.Context) (int64, error) {
	q, err := o.LastPrice(ctx, "BTC")
	if err != nil {
		return 0, err
	}
	return q.Timestamp, nil
}

// Version identifies the gateway implementation.
func (o *AlpacaOracle) Version() string { return "alpaca-crypto/1" }
