package quotestore

import (
	"sort"
	"sync"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// Store holds the latest known quote per symbol. Writes are last-write-wins;
// out-of-order updates are not detected.
type Store struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
}

func New() *Store {
	return &Store{quotes: make(map[string]models.Quote)}
}

func (s *Store) Get(symbol string) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

func (s *Store) Upsert(q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Snapshot copies every quote, sorted by symbol.
func (s *Store) Snapshot() []models.Quote {
	s.mu.RLock()
	out := make([]models.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotes)
}
