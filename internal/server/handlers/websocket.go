package handlers

import (
	"log/slog"
	"net/http"

	"golang.org/x/net/websocket"

	"git.home.luguber.info/inful/ordserve/internal/status"
)

// WSHandlers streams status snapshots to connected dashboards. Each client
// receives the current snapshot on connect and a fresh one after every
// lifecycle event.
type WSHandlers struct {
	Status *status.Provider
	Hub    *status.Hub
}

// Handler returns the handler for /api/v1/ws.
func (h *WSHandlers) Handler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()

		snapshots, unsubscribe := h.Hub.Subscribe()
		defer unsubscribe()

		if err := websocket.JSON.Send(conn, h.Status.Snapshot()); err != nil {
			return
		}
		for snap := range snapshots {
			if err := websocket.JSON.Send(conn, snap); err != nil {
				slog.Debug("Status stream client gone", slog.String("error", err.Error()))
				return
			}
		}
	})
}
