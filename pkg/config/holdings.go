package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// ParseHoldings decodes the "SYM:QTY,SYM:QTY" form used by client.holdings.
func ParseHoldings(raw string) ([]models.Holding, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var holdings []models.Holding
	for _, part := range strings.Split(raw, ",") {
		sym, qty, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("holding %q: expected SYMBOL:SHARES", part)
		}
		shares, err := decimal.NewFromString(strings.TrimSpace(qty))
		if err != nil {
			return nil, fmt.Errorf("holding %q: %w", part, err)
		}
		holdings = append(holdings, models.Holding{
			Symbol: strings.ToUpper(strings.TrimSpace(sym)),
			Shares: shares,
		})
	}
	return holdings, nil
}
