package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Doer abstracts the HTTP client so tests can substitute transports.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOracle queries the price oracle and collateral oracle services.
//
// Expected endpoints:
//
//	GET {priceURL}/price/{asset}?strict=bool       -> {"price": "10.5"}
//	GET {collateralURL}/collateral/{asset}?strict=bool
//	    -> {"price": "10", "multiplier": "1.0", "revoked": false}
//
// A 404 maps to ErrPriceUnavailable and a 410 to ErrStalePrice; any other
// non-200 status is a plain upstream error.
type HTTPOracle struct {
	priceURL      string
	collateralURL string
	client        Doer
}

// NewHTTPOracle creates a client against the two oracle base URLs. A nil
// Doer gets a default http.Client with a 5s timeout.
func NewHTTPOracle(priceURL, collateralURL string, client Doer) *HTTPOracle {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPOracle{
		priceURL:      priceURL,
		collateralURL: collateralURL,
		client:        client,
	}
}

func (o *HTTPOracle) Price(ctx context.Context, asset string, strict bool) (decimal.Decimal, error) {
	var body struct {
		Price string `json:"price"`
	}
	if err := o.get(ctx, o.priceURL, "price", asset, strict, &body); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: bad price %q for %s: %w", body.Price, asset, err)
	}
	return price, nil
}

func (o *HTTPOracle) CollateralInfo(ctx context.Context, asset string, strict bool) (CollateralInfo, error) {
	var body struct {
		Price      string `json:"price"`
		Multiplier string `json:"multiplier"`
		Revoked    bool   `json:"revoked"`
	}
	if err := o.get(ctx, o.collateralURL, "collateral", asset, strict, &body); err != nil {
		return CollateralInfo{}, err
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return CollateralInfo{}, fmt.Errorf("oracle: bad collateral price %q for %s: %w", body.Price, asset, err)
	}
	multiplier, err := decimal.NewFromString(body.Multiplier)
	if err != nil {
		return CollateralInfo{}, fmt.Errorf("oracle: bad multiplier %q for %s: %w", body.Multiplier, asset, err)
	}
	return CollateralInfo{Price: price, Multiplier: multiplier, Revoked: body.Revoked}, nil
}

func (o *HTTPOracle) get(ctx context.Context, base, path, asset string, strict bool, out any) error {
	u := fmt.Sprintf("%s/%s/%s?strict=%s", base, path, url.PathEscape(asset), strconv.FormatBool(strict))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: query %s %s: %w", path, asset, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", path, asset, ErrPriceUnavailable)
	case http.StatusGone:
		return fmt.Errorf("%s %s: %w", path, asset, ErrStalePrice)
	default:
		return fmt.Errorf("oracle: query %s %s: unexpected status %d", path, asset, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("oracle: decode %s %s: %w", path, asset, err)
	}
	return nil
}
