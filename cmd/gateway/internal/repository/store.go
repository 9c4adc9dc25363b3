package repository

import (
	"context"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// QuoteSource is the upstream the gateway ingests quotes from.
type QuoteSource interface {
	// LoadAll returns every quote currently cached upstream.
	LoadAll(ctx context.Context) ([]models.Quote, error)
	// Run blocks, handing each live update to onQuote, until ctx is done.
	Run(ctx context.Context, onQuote func(models.Quote)) error
	Close() error
}
