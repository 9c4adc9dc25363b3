package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

// QuoteLookup is the read side of the quote store.
type QuoteLookup interface {
	Get(symbol string) (models.Quote, bool)
}

// Valuate prices every holding against the current quotes. Each symbol is read
// independently; there is no cross-symbol snapshot. If any symbol is missing
// the whole request fails with a NoDataError naming all of them.
func Valuate(quotes QuoteLookup, holdings []models.Holding) (models.Valuation, error) {
	if err := validate(holdings); err != nil {
		return models.Valuation{}, err
	}

	lines := make([]models.HoldingValue, 0, len(holdings))
	var missing []string
	total := decimal.Zero

	for _, h := range holdings {
		q, ok := quotes.Get(h.Symbol)
		if !ok {
			missing = append(missing, h.Symbol)
			continue
		}
		price := decimal.NewFromFloat(q.Price)
		value := h.Shares.Mul(price)
		total = total.Add(value)
		lines = append(lines, models.HoldingValue{
			Symbol:        h.Symbol,
			Shares:        h.Shares,
			CurrentPrice:  price,
			Value:         value,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
		})
	}

	if len(missing) > 0 {
		return models.Valuation{}, &protocol.NoDataError{Symbols: missing}
	}

	return models.Valuation{TotalValue: total, Holdings: lines}, nil
}

func validate(holdings []models.Holding) error {
	seen := make(map[string]bool, len(holdings))
	for i, h := range holdings {
		if h.Symbol == "" {
			return &protocol.ProtocolError{Reason: fmt.Sprintf("holding %d has no symbol", i)}
		}
		if !h.Shares.IsPositive() {
			return &protocol.ProtocolError{Reason: fmt.Sprintf("holding %s: shares must be positive, got %s", h.Symbol, h.Shares)}
		}
		if seen[h.Symbol] {
			return &protocol.ProtocolError{Reason: fmt.Sprintf("holding %s listed twice", h.Symbol)}
		}
		seen[h.Symbol] = true
	}
	return nil
}
