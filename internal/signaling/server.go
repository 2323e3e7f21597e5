package signaling

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/HMasataka/huddle/internal/handler"
	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

type ServerOptions struct {
	ReadLimit    int64
	PingInterval time.Duration
	WriteTimeout time.Duration
	// OutboxWarnSize logs a warning when a connection falls this many events behind.
	OutboxWarnSize int
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		ReadLimit:      512 * 1024, // 512KB
		PingInterval:   15 * time.Second,
		WriteTimeout:   10 * time.Second,
		OutboxWarnSize: 1024,
	}
}

// Server accepts signaling websockets and runs one call.Session per connection.
type Server struct {
	coord    *call.Coordinator
	options  ServerOptions
	upgrader ws.Upgrader
}

func NewServer(coord *call.Coordinator, options ServerOptions) *Server {
	return &Server{
		coord:   coord,
		options: options,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// IdentityFromRequest reads the caller identity set by the auth proxy,
// falling back to query parameters for local development.
func IdentityFromRequest(r *http.Request) call.Identity {
	id := call.Identity{
		SocketID: uuid.NewString(),
		UserID:   r.Header.Get(HeaderUserID),
		Name:     r.Header.Get(HeaderUserName),
	}
	if id.UserID == "" {
		id.UserID = r.URL.Query().Get("userId")
	}
	if id.Name == "" {
		id.Name = r.URL.Query().Get("name")
	}
	if id.Name == "" {
		id.Name = id.UserID
	}
	return id
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromRequest(r)
	if identity.UserID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", slog.String("error", err.Error()))
		return
	}

	s.serve(r.Context(), conn, identity)
}

func (s *Server) serve(parent context.Context, conn *ws.Conn, identity call.Identity) {
	// hijacked connections must not depend on the request lifetime
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	if s.options.ReadLimit > 0 {
		conn.SetReadLimit(s.options.ReadLimit)
	}
	if s.options.PingInterval > 0 {
		readTimeout := 3 * s.options.PingInterval
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		go s.pingLoop(ctx, conn)
	}

	s.ServeStream(ctx, jsonrpc2ws.NewObjectStream(conn), identity)
}

// ServeStream runs a signaling session over stream and blocks until the peer disconnects.
// The session cleanup has run by the time it returns.
func (s *Server) ServeStream(ctx context.Context, stream jsonrpc2.ObjectStream, identity call.Identity) {
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	outbox := NewOutbox(identity.SocketID, s.options.OutboxWarnSize)
	session := s.coord.NewSession(identity, outbox)

	rpc := jsonrpc2.NewConn(ctx, stream, handler.NewHandler(session, outbox))
	outbox.Start(ctx, rpc)

	slog.Info("signaling connected",
		slog.String("socket_id", identity.SocketID),
		slog.String("user_id", identity.UserID),
	)

	<-rpc.DisconnectNotify()

	outbox.Close()
	session.Close(context.WithoutCancel(ctx))

	slog.Info("signaling disconnected",
		slog.String("socket_id", identity.SocketID),
		slog.String("user_id", identity.UserID),
	)
}

func (s *Server) pingLoop(ctx context.Context, conn *ws.Conn) {
	ticker := time.NewTicker(s.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.options.WriteTimeout)
			if err := conn.WriteControl(ws.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
