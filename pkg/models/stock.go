package models

// Quote is a best-effort snapshot of a symbol's market data. Fields are not
// cross-checked; price - change may not equal previous close.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PreviousClose float64 `json:"previousClose"`
	Timestamp     int64   `json:"timestamp"`        // unix milli
	SeqID         int64   `json:"seq_id,omitempty"` // monotonic counter per symbol, set upstream
}
