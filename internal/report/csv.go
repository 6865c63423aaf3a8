package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"etf_cda/internal/domain"
	"etf_cda/pkg/currency"
)

var tradeHeader = []string{"round_number", "group_id", "timestamp", "price", "asset", "maker", "taker"}

// WriteTrades writes recs as CSV with prices in human-readable units.
// Several makers of one trade are joined with ";".
func WriteTrades(w io.Writer, recs []domain.TradeRecord, scaler currency.Scaler) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(tradeRow(r, scaler)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportRounds writes the journaled trades of trader for rounds 1..numRounds.
// scalerFor returns the currency scaler in effect for a round.
func ExportRounds(ctx context.Context, w io.Writer, journal domain.TradeJournal, trader string, numRounds int, scalerFor func(round int) (currency.Scaler, error)) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for round := 1; round <= numRounds; round++ {
		recs, err := journal.ListTrades(ctx, trader, round)
		if err != nil {
			return fmt.Errorf("list trades of round %d: %w", round, err)
		}
		if len(recs) == 0 {
			continue
		}
		scaler, err := scalerFor(round)
		if err != nil {
			return fmt.Errorf("scaler of round %d: %w", round, err)
		}
		for _, r := range recs {
			if err := cw.Write(tradeRow(r, scaler)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRow(r domain.TradeRecord, scaler currency.Scaler) []string {
	return []string{
		strconv.Itoa(r.Round),
		strconv.Itoa(r.GroupID),
		strconv.FormatInt(r.Timestamp, 10),
		scaler.Format(r.Price),
		r.AssetName,
		strings.Join(r.Makers(), ";"),
		r.TakerID,
	}
}
