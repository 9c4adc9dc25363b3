package quoteclient

import (
	"context"
	"sync"
	"time"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// Valuator is satisfied by *Client.
type Valuator interface {
	Valuate(ctx context.Context, holdings []models.Holding) (models.Valuation, error)
}

// Valuer remembers the last successful valuation so a failed refresh does not
// blank out what the caller is showing.
type Valuer struct {
	src Valuator

	mu     sync.Mutex
	last   models.Valuation
	lastAt time.Time
	have   bool
}

func NewValuer(src Valuator) *Valuer {
	return &Valuer{src: src}
}

// Value asks for a fresh valuation. On failure it returns the last known one
// (zero if none) alongside the error.
func (v *Valuer) Value(ctx context.Context, holdings []models.Holding) (models.Valuation, error) {
	fresh, err := v.src.Valuate(ctx, holdings)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		return v.last, err
	}
	v.last, v.lastAt, v.have = fresh, time.Now(), true
	return fresh, nil
}

// Last returns the most recent successful valuation and when it was taken.
func (v *Valuer) Last() (models.Valuation, time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last, v.lastAt, v.have
}
