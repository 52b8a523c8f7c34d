package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/starford/ticketdesk/internal/models"
)

const wsWriteTimeout = 5 * time.Second

// Frame is one websocket message. Type is "projection" or "status".
// Projection frames always carry a tickets array, empty when nothing matches.
type Frame struct {
	Type    string          `json:"type"`
	Tickets []models.Ticket `json:"tickets,omitzero"`
	Status  *StatusResponse `json:"status,omitempty"`
}

// Stream handles GET /api/ws.
//
// The client receives the current projection immediately and again after
// every change, plus a status frame whenever the pending count or loading
// state changes. Client messages are ignored.
//
//	@Summary		Stream the live ticket projection over a websocket
//	@Tags			view
//	@Success		101
//	@Security		BearerAuth
//	@Router			/ws [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	projection, stopProjection := h.store.Filtered().Subscribe()
	defer stopProjection()
	pending, stopPending := h.store.PendingCount().Subscribe()
	defer stopPending()
	loading, stopLoading := h.store.Loading().Subscribe()
	defer stopLoading()

	for {
		var frame Frame
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case tickets, ok := <-projection:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if tickets == nil {
				tickets = []models.Ticket{}
			}
			frame = Frame{Type: "projection", Tickets: tickets}
		case _, ok := <-pending:
			if !ok {
				pending = nil
				continue
			}
			st := h.status()
			frame = Frame{Type: "status", Status: &st}
		case _, ok := <-loading:
			if !ok {
				loading = nil
				continue
			}
			st := h.status()
			frame = Frame{Type: "status", Status: &st}
		}

		if err := h.writeFrame(ctx, conn, frame); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("websocket write failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (h *Handler) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}
