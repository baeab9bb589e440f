// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	xlog "github.com/netlabio/netlabd/internal/log"
	"github.com/netlabio/netlabd/internal/notification"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checking happens in the CORS middleware; the stream carries
	// no credentials beyond the already-verified bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriteLimit paces outbound frames so one firehose subscriber cannot
// monopolize the write path.
var wsWriteLimit = rate.Limit(200)

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	q := s.notifications.Subscribe()
	defer s.notifications.Unsubscribe(q)
	s.streamHTTP(w, r, q)
}

func (s *Server) handleProjectNotifications(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	q := s.notifications.SubscribeProject(p.ID)
	defer s.notifications.Unsubscribe(q)
	s.streamHTTP(w, r, q)
}

func (s *Server) handleNotificationsWS(w http.ResponseWriter, r *http.Request) {
	q := s.notifications.Subscribe()
	defer s.notifications.Unsubscribe(q)
	s.streamWS(w, r, q)
}

func (s *Server) handleProjectNotificationsWS(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	q := s.notifications.SubscribeProject(p.ID)
	defer s.notifications.Unsubscribe(q)
	s.streamWS(w, r, q)
}

// streamHTTP writes newline-delimited JSON notifications until the client
// disconnects. The first message is always a ping so clients see data
// straight away.
func (s *Server) streamHTTP(w http.ResponseWriter, r *http.Request, q *notification.Queue) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for {
		buf, err := q.ReceiveJSON(ctx, s.cfg.PingInterval)
		if err != nil {
			s.logStreamEnd(r, err)
			return
		}
		if _, err := w.Write(append(buf, '\n')); err != nil {
			return
		}
		flusher.Flush()
	}
}

// streamWS delivers notifications over a WebSocket, pacing frames and
// discarding anything the client sends.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, q *notification.Queue) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain the read side so close frames and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(wsWriteLimit, int(wsWriteLimit))
	ctx := r.Context()
	for {
		buf, err := q.ReceiveJSON(ctx, s.cfg.PingInterval)
		if err != nil {
			s.logStreamEnd(r, err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			return
		}
	}
}

func (s *Server) logStreamEnd(r *http.Request, err error) {
	logger := xlog.WithComponentFromContext(r.Context(), "notification")
	switch {
	case errors.Is(err, notification.ErrOverflow):
		logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("notification subscriber dropped: queue overflow")
	case errors.Is(err, notification.ErrClosed):
		logger.Debug().Msg("notification queue closed")
	default:
		logger.Debug().Err(err).Msg("notification stream ended")
	}
}
