package quoteclient_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

// peer is the server end of one test connection.
type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(resp protocol.WSResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.WriteJSON(resp)
}

func (p *peer) close() { p.conn.Close() }

// fakeServer scripts the gateway side of the protocol.
type fakeServer struct {
	t         *testing.T
	srv       *httptest.Server
	onConnect func(p *peer)
	onRequest func(p *peer, req protocol.WSRequest)

	mu    sync.Mutex
	peers []*peer
}

func newFakeServer(t *testing.T, onConnect func(*peer), onRequest func(*peer, protocol.WSRequest)) *fakeServer {
	fs := &fakeServer{t: t, onConnect: onConnect, onRequest: onRequest}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := &peer{conn: conn}
		fs.mu.Lock()
		fs.peers = append(fs.peers, p)
		fs.mu.Unlock()

		if fs.onConnect != nil {
			fs.onConnect(p)
		}
		go func() {
			defer conn.Close()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var req protocol.WSRequest
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				if fs.onRequest != nil {
					fs.onRequest(p, req)
				}
			}
		}()
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) URL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

func (fs *fakeServer) connections() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.peers)
}

var testQuotes = map[string]models.Quote{
	"A":    {Symbol: "A", Price: 100, Change: 1.4, ChangePercent: 0.42},
	"B":    {Symbol: "B", Price: 50, Change: -2.1, ChangePercent: -0.88},
	"AAPL": {Symbol: "AAPL", Price: 150.5, Change: 0.05, ChangePercent: 0.03},
}

func sendSnapshot(p *peer) {
	batch := make([]models.Quote, 0, len(testQuotes))
	for _, q := range testQuotes {
		batch = append(batch, q)
	}
	p.send(protocol.QuoteBatch(batch))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
