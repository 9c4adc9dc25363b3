package quoteclient

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

const (
	PlaceholderLoading = "Loading…"
	PlaceholderOffline = "Offline"
)

// Cache mirrors the server's quotes for one client session. It only answers
// while Connected; leaving that state drops every quote so nothing stale is
// served.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
	state  ConnectionState
}

func NewCache() *Cache {
	return &Cache{quotes: make(map[string]models.Quote)}
}

func (c *Cache) GetQuote(symbol string) (models.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Connected {
		return models.Quote{}, false
	}
	q, ok := c.quotes[symbol]
	return q, ok
}

func (c *Cache) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState records a transition and reports whether the state changed.
func (c *Cache) SetState(s ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return false
	}
	if c.state == Connected {
		c.quotes = make(map[string]models.Quote)
	}
	c.state = s
	return true
}

// Merge replaces by symbol; the last value wins.
func (c *Cache) Merge(quotes ...models.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotes {
		c.quotes[q.Symbol] = q
	}
}

// Symbols lists cached symbols in order.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Connected {
		return nil
	}
	out := make([]string, 0, len(c.quotes))
	for sym := range c.quotes {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Display is the presentation string for one symbol.
func (c *Cache) Display(symbol string) string {
	switch c.State() {
	case Disconnected, Errored:
		return PlaceholderOffline
	}
	q, ok := c.GetQuote(symbol)
	if !ok {
		return PlaceholderLoading
	}
	return fmt.Sprintf("%.2f %s", q.Price, FormatChange(q.Change, q.ChangePercent))
}
