package gateway

import (
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/hub"
)

// Handler upgrades each request to a websocket and attaches it to the hub.
func Handler(h *hub.Hub, logger *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		client := NewClient(conn, h, logger, opts)
		client.Start()
	}
}
