package clients

import "github.com/google/uuid"

// ClientEventType distinguishes connect and disconnect events.
type ClientEventType int

const (
	ClientEventTypeConnect ClientEventType = iota
	ClientEventTypeDisconnect
)

// ClientEvent is published when a connection is added or removed.
type ClientEvent struct {
	Type     ClientEventType
	ClientID uuid.UUID
}
