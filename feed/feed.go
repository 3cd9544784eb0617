// Package feed delivers market data to the engine: price ticks with
// intrabar extremes, and periodic funding-rate updates.
package feed

import (
	"context"

	"perpsim/market"
)

// Feed is the market-data collaborator. Run blocks until the context
// is cancelled; both channels are closed when it returns.
type Feed interface {
	Ticks() <-chan market.Tick
	Funding() <-chan market.FundingUpdate
	Run(ctx context.Context) error
}
