package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// ClientEventChannelSize is the buffer for connect/disconnect events.
	ClientEventChannelSize = 256
	// SendTimeout bounds a single write to a client connection.
	SendTimeout = 5 * time.Second
)

// Client represents a connected websocket client. UserID is empty until
// the connection authenticates.
type Client struct {
	ID     uuid.UUID
	Conn   *websocket.Conn
	UserID string

	// writeLock serializes writes; the websocket library allows only
	// one concurrent writer per connection.
	writeLock sync.Mutex
}

// SendMessage writes a message to the client connection.
func (c *Client) SendMessage(ctx context.Context, msg *messages.Message) error {
	b, err := messages.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()
	if err := c.Conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("failed to write message to websocket connection: %v", err)
	}

	return nil
}

// ClientManager manages connected clients and their user bindings.
type ClientManager struct {
	clients         map[uuid.UUID]*Client
	clientsLock     sync.RWMutex
	clientEventChan chan ClientEvent
}

// NewClientManager creates a new ClientManager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:         make(map[uuid.UUID]*Client),
		clientEventChan: make(chan ClientEvent, ClientEventChannelSize),
	}
}

// GetClientEventChan returns the channel connect/disconnect events are
// published on.
func (cm *ClientManager) GetClientEventChan() <-chan ClientEvent {
	return cm.clientEventChan
}

// AddClient registers a new connection and publishes a connect event.
func (cm *ClientManager) AddClient(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.New(),
		Conn: conn,
	}

	cm.clientsLock.Lock()
	cm.clients[client.ID] = client
	cm.clientsLock.Unlock()

	cm.clientEventChan <- ClientEvent{Type: ClientEventTypeConnect, ClientID: client.ID}
	return client
}

// RemoveClient removes a client and publishes a disconnect event.
func (cm *ClientManager) RemoveClient(clientID uuid.UUID) {
	cm.clientsLock.Lock()
	_, exists := cm.clients[clientID]
	delete(cm.clients, clientID)
	cm.clientsLock.Unlock()

	if !exists {
		return
	}
	cm.clientEventChan <- ClientEvent{Type: ClientEventTypeDisconnect, ClientID: clientID}
}

// GetClientByID retrieves a client by its connection id.
func (cm *ClientManager) GetClientByID(clientID uuid.UUID) *Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return cm.clients[clientID]
}

// GetClients returns all connected clients.
func (cm *ClientManager) GetClients() []*Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	return clients
}

// BindUser associates a connection with an authenticated user. It
// returns the connection id previously bound to that user, if any, so
// the caller can notify the superseded session.
func (cm *ClientManager) BindUser(clientID uuid.UUID, userID string) (uuid.UUID, bool) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	var previous uuid.UUID
	found := false
	for id, client := range cm.clients {
		if client.UserID == userID && id != clientID {
			client.UserID = ""
			previous = id
			found = true
		}
	}
	if client, ok := cm.clients[clientID]; ok {
		client.UserID = userID
	}
	return previous, found
}

// GetClientByUser retrieves the client currently bound to a user.
func (cm *ClientManager) GetClientByUser(userID string) *Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	for _, client := range cm.clients {
		if client.UserID == userID {
			return client
		}
	}
	return nil
}

// BoundUsers returns the user ids with a live bound connection, mapped
// to their connection ids.
func (cm *ClientManager) BoundUsers() map[string]uuid.UUID {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	bound := make(map[string]uuid.UUID)
	for id, client := range cm.clients {
		if client.UserID != "" {
			bound[client.UserID] = id
		}
	}
	return bound
}

// UserForClient returns the user id bound to a connection, if any.
func (cm *ClientManager) UserForClient(clientID uuid.UUID) (string, bool) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	client, ok := cm.clients[clientID]
	if !ok || client.UserID == "" {
		return "", false
	}
	return client.UserID, true
}

// Broadcast sends a message to every connected client.
func (cm *ClientManager) Broadcast(msg *messages.Message) {
	for _, client := range cm.GetClients() {
		if err := client.SendMessage(context.Background(), msg); err != nil {
			logrus.Errorf("Failed to write %s message to client %s: %v", msg.Type, client.ID, err)
		}
	}
}

// SendToClient sends a message to one connection.
func (cm *ClientManager) SendToClient(clientID uuid.UUID, msg *messages.Message) {
	client := cm.GetClientByID(clientID)
	if client == nil {
		logrus.Debugf("Dropping %s message for unknown client %s", msg.Type, clientID)
		return
	}
	if err := client.SendMessage(context.Background(), msg); err != nil {
		logrus.Errorf("Failed to write %s message to client %s: %v", msg.Type, client.ID, err)
	}
}

// SendToUser sends a message to the connection bound to a user, if any.
func (cm *ClientManager) SendToUser(userID string, msg *messages.Message) {
	client := cm.GetClientByUser(userID)
	if client == nil {
		return
	}
	if err := client.SendMessage(context.Background(), msg); err != nil {
		logrus.Errorf("Failed to write %s message to user %s: %v", msg.Type, userID, err)
	}
}
