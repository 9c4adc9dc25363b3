package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/quotestore"
	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/valuation"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

// ClientInterface is one live connection. A send error means the connection
// can no longer keep up or is gone.
type ClientInterface interface {
	ID() string
	SendJSON(v interface{}) error
	SendBytes(b []byte) error
	Close()
}

// Hub is the feed publisher: it owns the subscriber set and answers refresh
// and valuation requests against the quote store.
type Hub struct {
	clients map[string]ClientInterface // keyed by connection id
	mu      sync.RWMutex

	// bmu orders store reads with outgoing quote messages so a subscriber never
	// sees an older snapshot after a newer single quote.
	bmu sync.Mutex

	store  *quotestore.Store
	logger *zap.Logger
}

func NewHub(store *quotestore.Store, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]ClientInterface),
		store:   store,
		logger:  logger,
	}
}

// Register adds a subscriber and immediately pushes the full quote set to it.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	if old, ok := h.clients[client.ID()]; ok && old != client {
		h.logger.Warn("Replacing subscriber with duplicate id", zap.String("conn", client.ID()))
		defer old.Close()
	}
	h.clients[client.ID()] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Subscriber registered", zap.String("conn", client.ID()), zap.Int("subscribers", count))

	h.bmu.Lock()
	defer h.bmu.Unlock()
	h.reply(client, protocol.QuoteBatch(h.store.Snapshot()))
}

// Unregister drops the subscriber and closes it. Safe to call more than once.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	current, ok := h.clients[client.ID()]
	if ok && current == client {
		delete(h.clients, client.ID())
	}
	h.mu.Unlock()

	if ok && current == client {
		h.logger.Info("Subscriber unregistered", zap.String("conn", client.ID()))
	}
	client.Close()
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Ingest is the single write path into the store; the changed quote is
// broadcast on its own.
func (h *Hub) Ingest(q models.Quote) {
	h.bmu.Lock()
	defer h.bmu.Unlock()

	h.store.Upsert(q)
	h.broadcast(protocol.QuoteSingle("", q))
}

// BroadcastAll sends the full store contents to every subscriber.
func (h *Hub) BroadcastAll() {
	h.bmu.Lock()
	defer h.bmu.Unlock()
	h.broadcast(protocol.QuoteBatch(h.store.Snapshot()))
}

// BroadcastOne sends a single symbol to every subscriber. Unknown symbols are
// skipped.
func (h *Hub) BroadcastOne(symbol string) {
	h.bmu.Lock()
	defer h.bmu.Unlock()

	q, ok := h.store.Get(symbol)
	if !ok {
		h.logger.Debug("Broadcast skipped, no quote", zap.String("symbol", symbol))
		return
	}
	h.broadcast(protocol.QuoteSingle("", q))
}

// Run fires BroadcastAll every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastAll()
		}
	}
}

// Shutdown closes every subscriber.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]ClientInterface)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("Hub shut down", zap.Int("closed", len(clients)))
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionRefresh:
		h.handleRefresh(client, req)
	case protocol.ActionRefreshAll:
		h.handleRefreshAll(client, req)
	case protocol.ActionValuate:
		h.handleValuate(client, req)
	default:
		h.sendError(client, req.ID, &protocol.ProtocolError{Reason: "unknown action: " + req.Action})
	}
}

func (h *Hub) handleRefresh(client ClientInterface, req protocol.WSRequest) {
	if req.Payload.Symbol == "" {
		h.sendError(client, req.ID, &protocol.ProtocolError{Reason: "refresh requires a symbol"})
		return
	}

	h.bmu.Lock()
	defer h.bmu.Unlock()

	q, ok := h.store.Get(req.Payload.Symbol)
	if !ok {
		h.sendError(client, req.ID, &protocol.NoDataError{Symbols: []string{req.Payload.Symbol}})
		return
	}
	h.reply(client, protocol.QuoteSingle(req.ID, q))
}

func (h *Hub) handleRefreshAll(client ClientInterface, req protocol.WSRequest) {
	h.bmu.Lock()
	defer h.bmu.Unlock()

	resp := protocol.QuoteBatch(h.store.Snapshot())
	resp.ID = req.ID
	h.reply(client, resp)
}

func (h *Hub) handleValuate(client ClientInterface, req protocol.WSRequest) {
	if req.ID == "" {
		h.sendError(client, "", &protocol.ProtocolError{Reason: "valuate requires an id"})
		return
	}

	result, err := valuation.Valuate(h.store, req.Payload.Holdings)
	if err != nil {
		h.logger.Debug("Valuation rejected", zap.String("conn", client.ID()), zap.String("id", req.ID), zap.Error(err))
		h.sendError(client, req.ID, err)
		return
	}

	h.logger.Debug("Valuation computed",
		zap.String("conn", client.ID()),
		zap.String("id", req.ID),
		zap.Int("holdings", len(result.Holdings)),
		zap.String("total", result.TotalValue.String()))
	h.reply(client, protocol.ValuationResult(req.ID, result))
}

// broadcast marshals once and fans out. Subscribers whose send fails are
// dropped; there is no retry.
func (h *Hub) broadcast(resp protocol.WSResponse) {
	msg, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", zap.String("type", resp.Type), zap.Error(err))
		return
	}

	var failed []ClientInterface
	h.mu.RLock()
	for _, c := range h.clients {
		if err := c.SendBytes(msg); err != nil {
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range failed {
		h.logger.Warn("Dropping subscriber after failed send", zap.String("conn", c.ID()))
		h.Unregister(c)
	}
}

func (h *Hub) reply(c ClientInterface, resp protocol.WSResponse) {
	if err := c.SendJSON(resp); err != nil {
		h.logger.Warn("Dropping subscriber after failed reply",
			zap.String("conn", c.ID()), zap.String("type", resp.Type), zap.Error(err))
		h.Unregister(c)
	}
}

func (h *Hub) sendError(c ClientInterface, id string, err error) {
	h.reply(c, protocol.ErrorResponse(id, err))
}
