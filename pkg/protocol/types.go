package protocol

import (
	"encoding/json"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// Client -> server actions.
const (
	ActionRefresh    = "refresh"
	ActionRefreshAll = "refresh_all"
	ActionValuate    = "valuate"
)

// Server -> client message types.
const (
	TypeQuoteBatch = "quote_batch"
	TypeQuote      = "quote"
	TypeValuation  = "valuation"
	TypeError      = "error"
)

// Error codes carried by TypeError responses.
const (
	CodeNoData   = "no_data"
	CodeProtocol = "protocol"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbol   string           `json:"symbol,omitempty"`
	Holdings []models.Holding `json:"holdings,omitempty"`
}

type WSResponse struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"` // Matches request ID
	Symbol  string      `json:"symbol,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Symbols []string    `json:"symbols,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Envelope is the decode-side view of WSResponse; Data is left raw until the
// type is known.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Symbol  string          `json:"symbol,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Symbols []string        `json:"symbols,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func QuoteBatch(quotes []models.Quote) WSResponse {
	if quotes == nil {
		quotes = []models.Quote{}
	}
	return WSResponse{Type: TypeQuoteBatch, Data: quotes}
}

func QuoteSingle(id string, q models.Quote) WSResponse {
	return WSResponse{Type: TypeQuote, ID: id, Symbol: q.Symbol, Data: q}
}

func ValuationResult(id string, v models.Valuation) WSResponse {
	return WSResponse{Type: TypeValuation, ID: id, Data: v}
}
