// internal/handler/ws_handler.go
package handler

import (
	"net/http"
	"strconv"
	"sync"

	"payment-engine/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub streams balance updates to websocket subscribers, one set of
// connections per wallet. It implements the controller's notifier so
// every committed balance change is pushed without polling.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int64]map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[int64]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS upgrades the connection and subscribes it to one wallet's
// balance stream until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	walletID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.subscribe(walletID, conn)
	h.logger.Info("balance stream opened", zap.Int64("wallet_id", walletID))

	go func() {
		defer func() {
			h.unsubscribe(walletID, conn)
			conn.Close()
			h.logger.Info("balance stream closed", zap.Int64("wallet_id", walletID))
		}()

		// Drain control frames; any read error means the peer is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type balanceUpdate struct {
	WalletID    int64  `json:"wallet_id"`
	Operational string `json:"operational_balance"`
	Frozen      string `json:"frozen_balance"`
	Pending     string `json:"pending_balance"`
	Available   string `json:"available"`
}

// BalanceChanged pushes the new balances to every subscriber of the
// wallet. Connections that fail to accept the write are dropped.
func (h *Hub) BalanceChanged(walletID int64, w *domain.Wallet) {
	update := balanceUpdate{
		WalletID:    walletID,
		Operational: w.OperationalBalance.String(),
		Frozen:      w.FrozenBalance.String(),
		Pending:     w.PendingBalance.String(),
		Available:   w.Available().String(),
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[walletID]))
	for conn := range h.subs[walletID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(update); err != nil {
			h.logger.Warn("dropping stale balance subscriber",
				zap.Int64("wallet_id", walletID), zap.Error(err))
			h.unsubscribe(walletID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) subscribe(walletID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[walletID] == nil {
		h.subs[walletID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[walletID][conn] = struct{}{}
}

func (h *Hub) unsubscribe(walletID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[walletID], conn)
	if len(h.subs[walletID]) == 0 {
		delete(h.subs, walletID)
	}
}
