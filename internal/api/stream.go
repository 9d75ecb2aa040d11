package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"Actionboard/internal/store"
	v1 "Actionboard/pkg/api/v1"
)

const (
	transportSSE       = "sse"
	transportWebSocket = "websocket"

	defaultWriteWait = 10 * time.Second
	maxClientMessage = 512
)

// session tracks one client stream from connect to disconnect
type session struct {
	server    *Server
	id        string
	transport string
	snapshots int
}

func (s *Server) openSession(r *http.Request, transport string) *session {
	sess := &session{
		server:    s,
		id:        uuid.NewString(),
		transport: transport,
	}

	s.tracker.Start(sess.id, transport, r.RemoteAddr)
	s.metrics.StreamsActive.WithLabelValues(transport).Inc()
	sess.record(store.ActionConnected, nil)
	s.logger.Info("stream opened",
		"connection_id", sess.id,
		"transport", transport,
		"remote_addr", r.RemoteAddr,
	)

	return sess
}

func (sess *session) delivered() {
	sess.snapshots++
	sess.server.tracker.RecordSnapshot(sess.id)
}

// close finishes the session. err is the terminal poller error, if any.
func (sess *session) close(err error) {
	s := sess.server

	result := "ok"
	if err != nil {
		result = "error"
		sess.record(store.ActionError, err)
	}
	sess.record(store.ActionDisconnected, nil)

	s.tracker.Finish(sess.id, err)
	s.metrics.StreamsActive.WithLabelValues(sess.transport).Dec()
	s.metrics.StreamSessions.WithLabelValues(sess.transport, result).Inc()
	s.logger.Info("stream closed",
		"connection_id", sess.id,
		"transport", sess.transport,
		"snapshots", sess.snapshots,
		"result", result,
	)
}

func (sess *session) record(action string, err error) {
	if sess.server.store == nil {
		return
	}

	event := store.SessionEvent{
		ConnectionID: sess.id,
		Transport:    sess.transport,
		Action:       action,
		Snapshots:    sess.snapshots,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if err := sess.server.store.Record(event); err != nil {
		sess.server.logger.Warn("failed to record session event", "connection_id", sess.id, "error", err)
	}
}

func (s *Server) pingInterval() time.Duration {
	return s.config.Server.PingInterval
}

func (s *Server) writeWait() time.Duration {
	if s.config.Server.WriteTimeout > 0 {
		return s.config.Server.WriteTimeout
	}
	return defaultWriteWait
}

func writeSSE(w http.ResponseWriter, event string, id string, payload any) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", blob); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// handleStream relays snapshots as server-sent events. The stream opens with
// a ready event, carries one snapshot event per snapshot and ends with an
// error event when polling fails.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		v1.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The server write timeout would otherwise cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := s.openSession(r, transportSSE)
	var streamErr error
	defer func() { sess.close(streamErr) }()

	if err := writeSSE(w, "ready", "", v1.Ready{ConnectionID: sess.id, ServerTime: time.Now().UTC()}); err != nil {
		return
	}

	results := s.source.Stream(ctx)
	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				if ctx.Err() != nil {
					return
				}
				streamErr = res.Err
				s.logger.Error("snapshot stream failed", "connection_id", sess.id, "error", res.Err)
				_ = writeSSE(w, "error", "", v1.ErrorMessage{Error: res.Err.Error()})
				return
			}

			id := strconv.Itoa(sess.snapshots + 1)
			if err := writeSSE(w, "snapshot", id, v1.FromSnapshot(res.Snapshot)); err != nil {
				s.logger.Debug("client went away", "connection_id", sess.id, "error", err)
				return
			}
			sess.delivered()
		}
	}
}

// handleWebSocket relays snapshots as JSON text frames. A terminal error is
// sent as an error frame followed by a normal close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := s.openSession(r, transportWebSocket)
	var streamErr error
	defer func() { sess.close(streamErr) }()

	pongWait := 2 * s.pingInterval()
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound messages are ignored; a read error means the client is gone
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	results := s.source.Stream(ctx)
	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeWebSocket(conn, websocket.CloseGoingAway)
			return

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait())); err != nil {
				return
			}

		case res, ok := <-results:
			if !ok {
				s.closeWebSocket(conn, websocket.CloseNormalClosure)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait()))
			if res.Err != nil {
				if ctx.Err() != nil {
					return
				}
				streamErr = res.Err
				s.logger.Error("snapshot stream failed", "connection_id", sess.id, "error", res.Err)
				_ = conn.WriteJSON(v1.ErrorMessage{Error: res.Err.Error()})
				s.closeWebSocket(conn, websocket.CloseNormalClosure)
				return
			}

			if err := conn.WriteJSON(v1.FromSnapshot(res.Snapshot)); err != nil {
				s.logger.Debug("client went away", "connection_id", sess.id, "error", err)
				return
			}
			sess.delivered()
		}
	}
}

func (s *Server) closeWebSocket(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait()))
}
