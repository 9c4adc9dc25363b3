package models

import "github.com/shopspring/decimal"

// Holding references a symbol by name; the price is resolved at valuation time.
type Holding struct {
	Symbol string          `json:"symbol"`
	Shares decimal.Decimal `json:"shares"`
}

// HoldingValue is one line of a Valuation.
type HoldingValue struct {
	Symbol        string          `json:"symbol"`
	Shares        decimal.Decimal `json:"shares"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	Value         decimal.Decimal `json:"value"`
	Change        float64         `json:"change"`
	ChangePercent float64         `json:"changePercent"`
}

// Valuation is the result of pricing a holdings list at one instant.
// It is built once per request and never mutated afterwards.
type Valuation struct {
	TotalValue decimal.Decimal `json:"totalValue"`
	Holdings   []HoldingValue  `json:"holdings"`
}
