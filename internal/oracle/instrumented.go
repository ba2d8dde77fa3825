package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/metrics"
)

// Instrumented wraps an Oracle so every lookup is counted by outcome.
func Instrumented(o Oracle) Oracle {
	return &instrumented{next: o}
}

type instrumented struct {
	next Oracle
}

func (i *instrumented) Price(ctx context.Context, asset string, strict bool) (decimal.Decimal, error) {
	price, err := i.next.Price(ctx, asset, strict)
	metrics.OracleRequests.WithLabelValues(outcome(err)).Inc()
	return price, err
}

func (i *instrumented) CollateralInfo(ctx context.Context, asset string, strict bool) (CollateralInfo, error) {
	info, err := i.next.CollateralInfo(ctx, asset, strict)
	metrics.OracleRequests.WithLabelValues(outcome(err)).Inc()
	return info, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPriceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrStalePrice):
		return "stale"
	default:
		return "error"
	}
}
