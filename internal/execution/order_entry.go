package execution

import (
	"context"
	"fmt"
	"log/slog"

	"etf_cda/internal/domain"
	"etf_cda/pkg/currency"

	"github.com/google/uuid"
)

// OrderEntry turns a price typed by a trader into a unit-volume order and
// hands it to the market.
type OrderEntry struct {
	submitter  domain.OrderSubmitter
	scaler     currency.Scaler
	etf        *domain.Decomposition
	allowShort bool
	holdings   func() domain.HoldingsState
}

// NewOrderEntry creates an OrderEntry. holdings, if non-nil, is consulted to
// reject orders the trader cannot cover when shorting is disabled.
func NewOrderEntry(submitter domain.OrderSubmitter, scaler currency.Scaler, etf *domain.Decomposition, allowShort bool, holdings func() domain.HoldingsState) *OrderEntry {
	return &OrderEntry{
		submitter:  submitter,
		scaler:     scaler,
		etf:        etf,
		allowShort: allowShort,
		holdings:   holdings,
	}
}

// Enter submits a bid or ask of one unit of asset at the human-readable
// price and returns the request that was sent.
func (e *OrderEntry) Enter(ctx context.Context, asset, price string, isBid bool) (domain.OrderRequest, error) {
	if !e.etf.Known(asset) {
		return domain.OrderRequest{}, fmt.Errorf("%w: %s", domain.ErrUnknownAsset, asset)
	}
	scaled, err := e.scaler.ParseHumanReadable(price)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	if scaled < 0 {
		return domain.OrderRequest{}, fmt.Errorf("price must not be negative: %s", price)
	}

	req := domain.OrderRequest{
		ID:        uuid.NewString(),
		Price:     scaled,
		Volume:    1,
		IsBid:     isBid,
		AssetName: asset,
	}
	if err := e.checkCoverage(req); err != nil {
		return domain.OrderRequest{}, err
	}

	if err := e.submitter.SubmitOrder(ctx, req); err != nil {
		return domain.OrderRequest{}, fmt.Errorf("submit order %s: %w", req.ID, err)
	}
	slog.Info("Order entered",
		slog.String("id", req.ID),
		slog.String("asset", asset),
		slog.Bool("is_bid", isBid),
		slog.Int64("price", scaled),
	)
	return req, nil
}

func (e *OrderEntry) checkCoverage(req domain.OrderRequest) error {
	if e.allowShort || e.holdings == nil {
		return nil
	}
	h := e.holdings()

	if req.IsBid {
		if need := req.Price * req.Volume; h.AvailableCash < need {
			return fmt.Errorf("%w: need %d cash, have %d", domain.ErrInsufficientHoldings, need, h.AvailableCash)
		}
		return nil
	}

	need := map[string]int64{req.AssetName: req.Volume}
	if weights := e.etf.WeightsOf(req.AssetName); weights != nil {
		need = make(map[string]int64, len(weights))
		for component, w := range weights {
			need[component] = w * req.Volume
		}
	}
	for asset, qty := range need {
		if h.AvailableAssets[asset] < qty {
			return fmt.Errorf("%w: need %d %s, have %d", domain.ErrInsufficientHoldings, qty, asset, h.AvailableAssets[asset])
		}
	}
	return nil
}
