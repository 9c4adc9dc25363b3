package quoteclient_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/quoteclient"
)

var portfolio = []models.Holding{
	{Symbol: "A", Shares: decimal.NewFromInt(10)},
	{Symbol: "B", Shares: decimal.NewFromInt(5)},
}

// answer plays the gateway for every action against testQuotes.
func answer(req protocol.WSRequest) protocol.WSResponse {
	switch req.Action {
	case protocol.ActionRefresh:
		q, ok := testQuotes[req.Payload.Symbol]
		if !ok {
			return protocol.ErrorResponse(req.ID, &protocol.NoDataError{Symbols: []string{req.Payload.Symbol}})
		}
		return protocol.QuoteSingle(req.ID, q)

	case protocol.ActionRefreshAll:
		resp := protocol.QuoteBatch([]models.Quote{testQuotes["A"], testQuotes["B"]})
		resp.ID = req.ID
		return resp

	case protocol.ActionValuate:
		total := decimal.Zero
		var missing []string
		for _, h := range req.Payload.Holdings {
			q, ok := testQuotes[h.Symbol]
			if !ok {
				missing = append(missing, h.Symbol)
				continue
			}
			total = total.Add(h.Shares.Mul(decimal.NewFromFloat(q.Price)))
		}
		if len(missing) > 0 {
			return protocol.ErrorResponse(req.ID, &protocol.NoDataError{Symbols: missing})
		}
		return protocol.ValuationResult(req.ID, models.Valuation{TotalValue: total})
	}
	return protocol.ErrorResponse(req.ID, &protocol.ProtocolError{Reason: "unknown action"})
}

func replyNow(p *peer, req protocol.WSRequest) { p.send(answer(req)) }

type stateLog struct {
	mu     sync.Mutex
	states []quoteclient.ConnectionState
}

func (l *stateLog) record(s quoteclient.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) count(s quoteclient.ConnectionState) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.states {
		if got == s {
			n++
		}
	}
	return n
}

// startClient runs a client against fs and waits until it is connected. The
// returned channel yields Run's result.
func startClient(t *testing.T, fs *fakeServer, opts quoteclient.Options) (*quoteclient.Client, <-chan error) {
	t.Helper()
	opts.URL = fs.URL()
	if opts.ReconnectMin == 0 {
		opts.ReconnectMin = 20 * time.Millisecond
		opts.ReconnectMax = 100 * time.Millisecond
	}
	c := quoteclient.New(opts, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- c.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})

	waitFor(t, "connected", func() bool { return c.State() == quoteclient.Connected })
	return c, done
}

func TestClient_ConnectReceivesSnapshotAndLiveQuotes(t *testing.T) {
	var live *peer
	var mu sync.Mutex
	fs := newFakeServer(t, func(p *peer) {
		mu.Lock()
		live = p
		mu.Unlock()
		sendSnapshot(p)
	}, replyNow)

	c, _ := startClient(t, fs, quoteclient.Options{})
	waitFor(t, "snapshot", func() bool { _, ok := c.Quote("AAPL"); return ok })

	if _, ok := c.Quote("XYZ"); ok {
		t.Error("Unknown symbol should be absent")
	}

	mu.Lock()
	live.send(protocol.QuoteSingle("", models.Quote{Symbol: "AAPL", Price: 151}))
	mu.Unlock()
	waitFor(t, "live quote", func() bool { q, _ := c.Quote("AAPL"); return q.Price == 151 })
}

func TestClient_Valuate(t *testing.T) {
	fs := newFakeServer(t, sendSnapshot, replyNow)
	c, _ := startClient(t, fs, quoteclient.Options{})

	v, err := c.Valuate(context.Background(), portfolio)
	if err != nil {
		t.Fatalf("Valuate failed: %v", err)
	}
	if !v.TotalValue.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("Expected 1250, got %s", v.TotalValue)
	}
	if c.PendingCount() != 0 {
		t.Errorf("Request still pending after result")
	}
}

func TestClient_Valuate_NoData(t *testing.T) {
	fs := newFakeServer(t, sendSnapshot, replyNow)
	c, _ := startClient(t, fs, quoteclient.Options{})

	_, err := c.Valuate(context.Background(), []models.Holding{
		{Symbol: "A", Shares: decimal.NewFromInt(10)},
		{Symbol: "ZZZ", Shares: decimal.NewFromInt(1)},
	})

	var nd *protocol.NoDataError
	if !errors.As(err, &nd) {
		t.Fatalf("Expected NoDataError, got %v", err)
	}
	if len(nd.Symbols) != 1 || nd.Symbols[0] != "ZZZ" {
		t.Errorf("Expected ZZZ named, got %v", nd.Symbols)
	}
}

func TestClient_ConcurrentValuations_NoCrossDelivery(t *testing.T) {
	var mu sync.Mutex
	var held []protocol.WSRequest

	// hold both requests, then answer in reverse order
	fs := newFakeServer(t, sendSnapshot, func(p *peer, req protocol.WSRequest) {
		mu.Lock()
		held = append(held, req)
		ready := len(held) == 2
		batch := append([]protocol.WSRequest(nil), held...)
		mu.Unlock()
		if ready {
			p.send(answer(batch[1]))
			p.send(answer(batch[0]))
		}
	})
	c, _ := startClient(t, fs, quoteclient.Options{})

	type result struct {
		v   models.Valuation
		err error
	}
	onlyA := []models.Holding{{Symbol: "A", Shares: decimal.NewFromInt(10)}}
	onlyB := []models.Holding{{Symbol: "B", Shares: decimal.NewFromInt(5)}}

	var wg sync.WaitGroup
	var ra, rb result
	wg.Add(2)
	go func() {
		defer wg.Done()
		ra.v, ra.err = c.Valuate(context.Background(), onlyA)
	}()
	go func() {
		defer wg.Done()
		rb.v, rb.err = c.Valuate(context.Background(), onlyB)
	}()
	wg.Wait()

	if ra.err != nil || !ra.v.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Caller A got %s, %v", ra.v.TotalValue, ra.err)
	}
	if rb.err != nil || !rb.v.TotalValue.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Caller B got %s, %v", rb.v.TotalValue, rb.err)
	}
}

func TestClient_Valuate_DefaultTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default timeout")
	}
	fs := newFakeServer(t, sendSnapshot, func(*peer, protocol.WSRequest) {})
	c, _ := startClient(t, fs, quoteclient.Options{})

	start := time.Now()
	_, err := c.Valuate(context.Background(), portfolio)
	elapsed := time.Since(start)

	var te *protocol.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if elapsed < 4900*time.Millisecond || elapsed > 7*time.Second {
		t.Errorf("Expected roughly 5s, took %s", elapsed)
	}
	if c.PendingCount() != 0 {
		t.Error("Timed out request still pending")
	}
}

func TestClient_LateResponseIsDropped(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	fs := newFakeServer(t, func(p *peer) {
		sendSnapshot(p)
		// neither of these belongs to a caller
		p.send(protocol.ValuationResult("", models.Valuation{TotalValue: decimal.NewFromInt(1)}))
		p.send(protocol.ErrorResponse("nobody", &protocol.ProtocolError{Reason: "stray"}))
	}, func(p *peer, req protocol.WSRequest) {
		mu.Lock()
		seen++
		first := seen == 1
		mu.Unlock()
		if first {
			time.AfterFunc(300*time.Millisecond, func() {
				p.send(protocol.ValuationResult(req.ID, models.Valuation{TotalValue: decimal.NewFromInt(999)}))
			})
			return
		}
		replyNow(p, req)
	})
	c, _ := startClient(t, fs, quoteclient.Options{RequestTimeout: 100 * time.Millisecond})

	_, err := c.Valuate(context.Background(), portfolio)
	var te *protocol.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}

	v, err := c.Valuate(context.Background(), portfolio)
	if err != nil || !v.TotalValue.Equal(decimal.NewFromInt(1250)) {
		t.Fatalf("Second call got %s, %v", v.TotalValue, err)
	}

	time.Sleep(350 * time.Millisecond)
	if c.State() != quoteclient.Connected {
		t.Errorf("Late response should not disturb the connection, state %s", c.State())
	}
	if c.PendingCount() != 0 {
		t.Error("Late response left a pending entry")
	}
}

func TestClient_DisconnectFailsPendingImmediately(t *testing.T) {
	fs := newFakeServer(t, sendSnapshot, func(p *peer, req protocol.WSRequest) {
		p.close()
	})
	c, _ := startClient(t, fs, quoteclient.Options{})

	start := time.Now()
	_, err := c.Valuate(context.Background(), portfolio)

	var ce *protocol.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConnectionError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Disconnect should fail the call at once, took %s", elapsed)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := quoteclient.New(quoteclient.Options{URL: "ws://127.0.0.1:1/ws"}, zap.NewNop())

	_, err := c.Valuate(context.Background(), portfolio)
	var ce *protocol.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConnectionError, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Error("Failed write left a pending entry")
	}
	if _, ok := c.Quote("A"); ok {
		t.Error("Disconnected client must not serve quotes")
	}
}

func TestClient_ContextCancel(t *testing.T) {
	fs := newFakeServer(t, sendSnapshot, func(*peer, protocol.WSRequest) {})
	c, _ := startClient(t, fs, quoteclient.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Valuate(ctx, portfolio)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context error, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Error("Cancelled request still pending")
	}
}

func TestClient_Refresh(t *testing.T) {
	fs := newFakeServer(t, nil, replyNow)
	c, _ := startClient(t, fs, quoteclient.Options{})

	q, err := c.Refresh(context.Background(), "AAPL")
	if err != nil || q.Price != 150.5 {
		t.Fatalf("Refresh got %+v, %v", q, err)
	}
	if cached, ok := c.Quote("AAPL"); !ok || cached.Price != 150.5 {
		t.Error("Refreshed quote should land in the cache")
	}

	_, err = c.Refresh(context.Background(), "ZZZ")
	var nd *protocol.NoDataError
	if !errors.As(err, &nd) || nd.Symbols[0] != "ZZZ" {
		t.Errorf("Expected NoDataError for ZZZ, got %v", err)
	}
}

func TestClient_RefreshAll(t *testing.T) {
	fs := newFakeServer(t, nil, replyNow)
	c, _ := startClient(t, fs, quoteclient.Options{})

	qs, err := c.RefreshAll(context.Background())
	if err != nil || len(qs) != 2 {
		t.Fatalf("RefreshAll got %d quotes, %v", len(qs), err)
	}
	if syms := c.Cache().Symbols(); len(syms) != 2 {
		t.Errorf("Expected 2 cached symbols, got %v", syms)
	}
}

func TestClient_ReconnectsAndDropsStaleQuotes(t *testing.T) {
	var mu sync.Mutex
	var first *peer
	fs := newFakeServer(t, func(p *peer) {
		mu.Lock()
		defer mu.Unlock()
		if first == nil {
			first = p
			sendSnapshot(p)
		}
	}, replyNow)

	log := &stateLog{}
	c, _ := startClient(t, fs, quoteclient.Options{OnState: log.record})
	waitFor(t, "snapshot", func() bool { _, ok := c.Quote("A"); return ok })

	mu.Lock()
	first.close()
	mu.Unlock()

	waitFor(t, "reconnect", func() bool {
		return fs.connections() == 2 && c.State() == quoteclient.Connected
	})
	if log.count(quoteclient.Errored) == 0 {
		t.Error("Expected an errored transition on connection loss")
	}
	if _, ok := c.Quote("A"); ok {
		t.Error("Quotes from the dropped connection must not be served")
	}
}

func TestClient_Close(t *testing.T) {
	fs := newFakeServer(t, sendSnapshot, func(*peer, protocol.WSRequest) {})
	c, done := startClient(t, fs, quoteclient.Options{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Valuate(context.Background(), portfolio)
		errc <- err
	}()
	waitFor(t, "request in flight", func() bool { return c.PendingCount() == 1 })

	c.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run should return nil after Close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	var ce *protocol.ConnectionError
	if err := <-errc; !errors.As(err, &ce) {
		t.Errorf("In-flight request should fail with ConnectionError, got %v", err)
	}
	if c.State() != quoteclient.Disconnected {
		t.Errorf("Expected disconnected, got %s", c.State())
	}

	_, err := c.Valuate(context.Background(), portfolio)
	if !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestOptions_ReconnectWindowDefaults(t *testing.T) {
	tests := []struct {
		name     string
		in       quoteclient.Options
		min, max time.Duration
	}{
		{"unset", quoteclient.Options{}, 500 * time.Millisecond, 30 * time.Second},
		{"floor above default ceiling", quoteclient.Options{ReconnectMin: time.Minute}, time.Minute, time.Minute},
		{"floor only", quoteclient.Options{ReconnectMin: time.Second}, time.Second, 30 * time.Second},
		{"explicit window", quoteclient.Options{ReconnectMin: time.Second, ReconnectMax: 2 * time.Minute}, time.Second, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Defaults()
			if got.ReconnectMin != tt.min || got.ReconnectMax != tt.max {
				t.Errorf("Got window %s..%s, want %s..%s", got.ReconnectMin, got.ReconnectMax, tt.min, tt.max)
			}
			if got.ReconnectMax < got.ReconnectMin {
				t.Error("Ceiling below floor")
			}
		})
	}
}
