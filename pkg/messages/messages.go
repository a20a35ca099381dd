package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/google/uuid"
)

// MessageType identifies a client or server event.
type MessageType string

// Client -> server events.
const (
	MessageTypeLogin            MessageType = "login"
	MessageTypeReconnectUser    MessageType = "reconnectUser"
	MessageTypeJoinGame         MessageType = "joinGame"
	MessageTypeSelectTile       MessageType = "selectTile"
	MessageTypeSyncGameState    MessageType = "syncGameState"
	MessageTypeSyncScore        MessageType = "syncScore"
	MessageTypeSaveGameState    MessageType = "saveGameState"
	MessageTypeLeaveGame        MessageType = "leaveGame"
	MessageTypeGetPlayers       MessageType = "getPlayers"
	MessageTypeUpdatePoints     MessageType = "updatePoints"
	MessageTypeDirectSetPoints  MessageType = "directSetPoints"
	MessageTypeToggleBlockUser  MessageType = "toggleBlockUser"
	MessageTypeUnlockUserScore  MessageType = "unlockUserScore"
	MessageTypeUnlockTables     MessageType = "unlockTables"
	MessageTypeAdminResetTables MessageType = "adminResetTables"
	MessageTypeResetGame        MessageType = "resetGame"
	MessageTypeRechargePoints   MessageType = "rechargePoints"
)

// Server -> client events.
const (
	MessageTypeLoginResponse           MessageType = "loginResponse"
	MessageTypeCommandResponse         MessageType = "commandResponse"
	MessageTypeGameState               MessageType = "gameState"
	MessageTypeTileSelected            MessageType = "tileSelected"
	MessageTypeTurnTimeout             MessageType = "turnTimeout"
	MessageTypeBoardReset              MessageType = "boardReset"
	MessageTypeForceScoreUpdate        MessageType = "forceScoreUpdate"
	MessageTypeBlockStatusChanged      MessageType = "blockStatusChanged"
	MessageTypePlayerConnectionChanged MessageType = "playerConnectionChanged"
	MessageTypeSessionClosed           MessageType = "sessionClosed"
	MessageTypeMessage                 MessageType = "message"
	MessageTypePlayersList             MessageType = "playersList"
	MessageTypePlayersUpdate           MessageType = "playersUpdate"
)

// Message is the wire envelope for every event in either direction.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds a Message, marshaling the payload.
func New(t MessageType, payload interface{}) (*Message, error) {
	if payload == nil {
		return &Message{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", t, err)
	}
	return &Message{Type: t, Payload: b}, nil
}

// Serialize encodes a Message for the wire.
func Serialize(m *Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return b, nil
}

// Deserialize decodes a Message from the wire.
func Deserialize(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return m, nil
}

// ClientMessage is a client Message annotated with the connection it
// arrived on, as queued for the game loop.
type ClientMessage struct {
	ClientID uuid.UUID
	Message  *Message
}

// Client payloads.

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ReconnectUserRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type SelectTileRequest struct {
	TileIndex int `json:"tileIndex"`
	// CurrentScore is sent by clients but never trusted; the server
	// computes scores authoritatively.
	CurrentScore int `json:"currentScore"`
}

type SyncRequest struct {
	UserID string `json:"userId"`
}

type UpdatePointsRequest struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
}

type DirectSetPointsRequest struct {
	UserID    string `json:"userId"`
	NewPoints int    `json:"newPoints"`
}

type TargetUserRequest struct {
	UserID string `json:"userId"`
}

// Server payloads.

type LoginResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message,omitempty"`
	UserID             string `json:"userId,omitempty"`
	Username           string `json:"username,omitempty"`
	Score              int    `json:"score"`
	IsAdmin            bool   `json:"isAdmin"`
	IsBlocked          bool   `json:"isBlocked"`
	IsLockedDueToScore bool   `json:"isLockedDueToScore"`
}

type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TileView is a tile as sent to clients. Unrevealed tiles never carry
// their value.
type TileView struct {
	Value      *int   `json:"value"`
	Revealed   bool   `json:"revealed"`
	SelectedBy string `json:"selectedBy,omitempty"`
	SelectedAt int64  `json:"selectedAt,omitempty"`
}

type PlayerView struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	IsConnected        bool   `json:"isConnected"`
	IsBlocked          bool   `json:"isBlocked"`
	IsLockedDueToScore bool   `json:"isLockedDueToScore"`
}

type GameStatePayload struct {
	Board         []TileView      `json:"board"`
	CurrentPlayer *PlayerView     `json:"currentPlayer"`
	Players       []PlayerView    `json:"players"`
	Status        string          `json:"status"`
	TurnStartTime int64           `json:"turnStartTime"`
	RowSelections [board.Rows]int `json:"rowSelections"`
}

type TileSelectedPayload struct {
	TileIndex     int             `json:"tileIndex"`
	TileValue     int             `json:"tileValue"`
	PlayerID      string          `json:"playerId"`
	NewScore      int             `json:"newScore"`
	RowSelections [board.Rows]int `json:"rowSelections"`
	SoundType     string          `json:"soundType"`
	Timestamp     int64           `json:"timestamp"`
}

type TurnTimeoutPayload struct {
	PlayerID string `json:"playerId"`
}

type BoardResetPayload struct {
	Message        string     `json:"message"`
	NewTableNumber int        `json:"newTableNumber"`
	NewBoard       []TileView `json:"newBoard"`
}

type ForceScoreUpdatePayload struct {
	Score int `json:"score"`
}

type BlockStatusChangedPayload struct {
	IsBlocked          *bool  `json:"isBlocked,omitempty"`
	IsLockedDueToScore *bool  `json:"isLockedDueToScore,omitempty"`
	Message            string `json:"message,omitempty"`
}

type PlayerConnectionChangedPayload struct {
	PlayerID    string `json:"playerId"`
	IsConnected bool   `json:"isConnected"`
	Username    string `json:"username"`
}

type SessionClosedPayload struct {
	Message string `json:"message"`
}

type TextMessagePayload struct {
	Text string `json:"text"`
}

// AdminPlayerView is the per-user row returned to admin clients.
type AdminPlayerView struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Score              int    `json:"score"`
	IsBlocked          bool   `json:"isBlocked"`
	IsLockedDueToScore bool   `json:"isLockedDueToScore"`
	TablesPlayed       int    `json:"tablesPlayed"`
	IsConnected        bool   `json:"isConnected"`
}

type PlayersListPayload struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Players []AdminPlayerView `json:"players,omitempty"`
}
