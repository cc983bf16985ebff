// Package socket pushes match lifecycle events to socket.io clients. Clients
// emit "join" with {"matchPubKey": ...} and receive every event for that match.
package socket

import (
	"log/slog"

	"solana_game_server/logging"
	"solana_game_server/models"

	socketio "github.com/googollee/go-socket.io"
)

const namespace = "/"

// Server wraps a socket.io server and publishes match events to per-match rooms.
type Server struct {
	IO     *socketio.Server
	logger *slog.Logger
}

// NewSocketServer initializes and returns a new Socket.IO server
func NewSocketServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	server := socketio.NewServer(nil)

	server.OnConnect(namespace, func(c socketio.Conn) error {
		logger.Debug("✅ Socket connected", "id", c.ID())
		return nil
	})

	server.OnEvent(namespace, "join", func(c socketio.Conn, data map[string]string) {
		matchPubKey := data["matchPubKey"]
		if matchPubKey == "" {
			logger.Warn("❌ Invalid matchPubKey in join request", "id", c.ID())
			return
		}
		logger.Debug("👥 Socket joined match", "id", c.ID(), "matchPubKey", matchPubKey)
		c.Join(matchPubKey)
	})

	server.OnEvent(namespace, "leave", func(c socketio.Conn, data map[string]string) {
		c.Leave(data["matchPubKey"])
	})

	server.OnError(namespace, func(c socketio.Conn, err error) {
		logger.Warn("⚠️ Socket error", "error", err)
	})

	server.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		logger.Debug("❌ Socket disconnected", "id", c.ID(), "reason", reason)
	})

	return &Server{IO: server, logger: logger}
}

// Publish broadcasts event to everyone in the match's room.
func (s *Server) Publish(event models.MatchEvent) {
	if !s.IO.BroadcastToRoom(namespace, event.MatchPubKey, event.Type, event) {
		s.logger.Debug("🔍 No socket listeners for event", "event", event.Type, "matchPubKey", event.MatchPubKey)
	}
}

// Serve runs the socket.io event loop until Close.
func (s *Server) Serve() error {
	return s.IO.Serve()
}

// Close stops the event loop.
func (s *Server) Close() error {
	return s.IO.Close()
}
