package realtime

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"
)

const namespace = "/"

// SocketServer relays events to socket.io clients. Clients emit "join" and
// "leave" with a case id to follow its message thread.
type SocketServer struct {
	server *socketio.Server
}

// NewSocketServer registers the connection handlers and starts serving in
// the background
func NewSocketServer() *SocketServer {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect(namespace, func(s socketio.Conn) error {
		s.SetContext("")
		zap.S().Debugw("socket.io client connected", "id", s.ID())
		return nil
	})

	server.OnError(namespace, func(s socketio.Conn, e error) {
		zap.S().Warnw("socket.io error", "error", e)
	})

	server.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		zap.S().Debugw("socket.io client disconnected", "id", s.ID(), "reason", reason)
	})

	server.OnEvent(namespace, "join", func(s socketio.Conn, room string) {
		if room != "" {
			s.Join(room)
		}
	})

	server.OnEvent(namespace, "leave", func(s socketio.Conn, room string) {
		if room != "" {
			s.Leave(room)
		}
	})

	go func() {
		if err := server.Serve(); err != nil {
			zap.S().Errorw("socket.io server stopped", "error", err)
		}
	}()

	return &SocketServer{server: server}
}

// ServeHTTP implements http.Handler
func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.ServeHTTP(w, r)
}

// Publish implements Broadcaster
func (s *SocketServer) Publish(event string, payload interface{}) {
	s.server.BroadcastToNamespace(namespace, event, payload)
}

// PublishTo implements Broadcaster
func (s *SocketServer) PublishTo(room, event string, payload interface{}) {
	s.server.BroadcastToRoom(namespace, room, event, payload)
}

// Close stops the server
func (s *SocketServer) Close() error {
	return s.server.Close()
}
