package network

import (
	"context"
	"net/http"

	"github.com/cbodonnell/memoria/pkg/clients"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/cbodonnell/memoria/pkg/queue"
	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// WSServer accepts websocket connections, registers them with the
// client manager, and feeds decoded client messages into the queue the
// game loop drains.
type WSServer struct {
	clientManager      *clients.ClientManager
	clientMessageQueue queue.Queue
}

type NewWSServerOptions struct {
	ClientManager      *clients.ClientManager
	ClientMessageQueue queue.Queue
}

// NewWSServer creates a new WSServer.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		clientManager:      opts.ClientManager,
		clientMessageQueue: opts.ClientMessageQueue,
	}
}

// Handler returns the http handler that upgrades connections.
func (s *WSServer) Handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Browser clients are served from a different origin.
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logrus.Errorf("Failed to upgrade to websocket: %v", err)
			return
		}
		logrus.Debugf("New websocket connection from %s", r.RemoteAddr)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads messages from one connection until it closes.
func (s *WSServer) handleConnection(ctx context.Context, conn *websocket.Conn) {
	client := s.clientManager.AddClient(conn)
	defer func() {
		s.clientManager.RemoveClient(client.ID)
		conn.CloseNow()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logrus.Debugf("Connection closed for client %s: %v", client.ID, err)
			}
			return
		}

		msg, err := messages.Deserialize(data)
		if err != nil {
			logrus.Warnf("Discarding malformed message from client %s: %v", client.ID, err)
			continue
		}

		if err := s.clientMessageQueue.Enqueue(&messages.ClientMessage{
			ClientID: client.ID,
			Message:  msg,
		}); err != nil {
			logrus.Errorf("Failed to enqueue %s message from client %s: %v", msg.Type, client.ID, err)
		}
	}
}
