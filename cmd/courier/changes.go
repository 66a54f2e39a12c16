package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"courier/internal/models"

	"github.com/coder/websocket"
)

const (
	changeBufferSize  = 32
	changeWriteWindow = 5 * time.Second
)

// handleChanges upgrades to a websocket and streams the account's delivery
// status changes as JSON text frames. A client that cannot keep up loses
// intermediate events rather than blocking the feed.
func (s *Server) handleChanges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Debug("Websocket upgrade failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream closed")

		// The client never sends data frames; CloseRead surfaces the peer
		// closing the connection through context cancellation.
		ctx := conn.CloseRead(r.Context())

		changes := make(chan models.DeliveryChange, changeBufferSize)
		sub := s.feed.Subscribe(userID, func(change models.DeliveryChange) {
			select {
			case changes <- change:
			default:
			}
		})
		defer sub.Close()

		s.logger.WithField("user_id", userID).Debug("Change stream opened")

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case change := <-changes:
				data, err := json.Marshal(change)
				if err != nil {
					s.logger.WithError(err).Error("Failed to encode delivery change")
					continue
				}
				writeCtx, cancel := context.WithTimeout(ctx, changeWriteWindow)
				err = conn.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}
