package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

var ErrMockClosed = errors.New("mock client closed")

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.Envelope // every frame, decoded
	Closed   bool
	Fail     bool // make every send fail
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.Envelope, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.SendBytes(b)
}

func (m *MockClient) SendBytes(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Closed || m.Fail {
		return ErrMockClosed
	}

	var env protocol.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	m.Messages = append(m.Messages, env)
	return nil
}

func (m *MockClient) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Messages)
}

func (m *MockClient) Last() protocol.Envelope {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.Envelope{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) LastMsgType() string { return m.Last().Type }

// Quotes decodes the data of a quote or quote_batch envelope.
func Quotes(env protocol.Envelope) []models.Quote {
	switch env.Type {
	case protocol.TypeQuote:
		var q models.Quote
		if json.Unmarshal(env.Data, &q) != nil {
			return nil
		}
		return []models.Quote{q}
	case protocol.TypeQuoteBatch:
		var qs []models.Quote
		if json.Unmarshal(env.Data, &qs) != nil {
			return nil
		}
		return qs
	}
	return nil
}

// MockQuoteSource simulates the Redis-backed upstream feed
type MockQuoteSource struct {
	Initial []models.Quote
	Live    chan models.Quote
	LoadErr error
	Closed  bool
	Mu      sync.Mutex
}

func NewMockSource(initial ...models.Quote) *MockQuoteSource {
	return &MockQuoteSource{Initial: initial, Live: make(chan models.Quote, 16)}
}

func (m *MockQuoteSource) LoadAll(ctx context.Context) ([]models.Quote, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Initial, nil
}

func (m *MockQuoteSource) Run(ctx context.Context, onQuote func(models.Quote)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-m.Live:
			onQuote(q)
		}
	}
}

func (m *MockQuoteSource) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}
