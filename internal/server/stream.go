package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// handleEvents streams the user's progression events over a websocket until
// either side closes it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe(userID)
	defer sub.Close()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	slog.Debug("event stream opened", "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("event stream write failed", "user_id", userID, "error", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
