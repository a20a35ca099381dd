package types

import (
	"fmt"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/google/uuid"
)

// Game status values.
const (
	StatusPlaying   = "playing"
	StatusGameOver  = "gameover"
	StatusResetting = "resetting"
)

// User is an account from the fixed user list. Scores and flags are
// mutated by gameplay and admin actions; users are never deleted.
type User struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Password           string `json:"-"`
	Score              int    `json:"score"`
	IsAdmin            bool   `json:"isAdmin"`
	IsBlocked          bool   `json:"isBlocked"`
	IsLockedDueToScore bool   `json:"isLockedDueToScore"`
	TablesPlayed       int    `json:"tablesPlayed"`
}

// Player is a User's participation record in the live game. It is kept
// across disconnects (marked disconnected) so reconnection does not
// lose turn state, and removed only on an explicit leave.
type Player struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	ConnectionID uuid.UUID `json:"-"`
	IsConnected  bool      `json:"isConnected"`
}

// SelectionState tracks how many tiles a player has revealed in each
// row of the current board. Reset on board rotation, not on turn change.
type SelectionState struct {
	Rows  [board.Rows]int `json:"rows"`
	Total int             `json:"total"`
}

// GameState is the single shared, persisted game state. It is owned by
// the game loop goroutine; nothing else mutates it.
type GameState struct {
	Board              board.Board                `json:"board"`
	Players            []*Player                  `json:"players"`
	CurrentPlayerIndex int                        `json:"currentPlayerIndex"`
	CurrentPlayer      *Player                    `json:"currentPlayer"`
	Status             string                     `json:"status"`
	TurnStartTime      int64                      `json:"turnStartTime"`
	RowSelections      [board.Rows]int            `json:"rowSelections"`
	PlayerSelections   map[string]*SelectionState `json:"playerSelections"`
	TableCount         int                        `json:"tableCount"`
	GlobalTableNumber  int                        `json:"globalTableNumber"`
	LastTableResetDate string                     `json:"lastTableResetDate"`
}

// PlayerByID returns the player record for a user id, or nil.
func (gs *GameState) PlayerByID(id string) *Player {
	for _, p := range gs.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SelectionsFor returns the selection state for a user, creating it
// lazily on first use.
func (gs *GameState) SelectionsFor(id string) *SelectionState {
	if gs.PlayerSelections == nil {
		gs.PlayerSelections = make(map[string]*SelectionState)
	}
	sel, ok := gs.PlayerSelections[id]
	if !ok {
		sel = &SelectionState{}
		gs.PlayerSelections[id] = sel
	}
	return sel
}

// UserScore is the persisted per-user slice of a snapshot.
type UserScore struct {
	Score              int  `json:"score"`
	IsBlocked          bool `json:"isBlocked"`
	IsLockedDueToScore bool `json:"isLockedDueToScore"`
	TablesPlayed       int  `json:"tablesPlayed"`
}

// PlayerGameState is idle bookkeeping persisted per player. Entries are
// purged after a long timeout; player records are not.
type PlayerGameState struct {
	LastSeen int64 `json:"lastSeen"`
}

// Snapshot is the full persisted state written to the durable store and
// the local snapshot tiers.
type Snapshot struct {
	Board              board.Board                `json:"board"`
	Players            []*Player                  `json:"players"`
	CurrentPlayerIndex int                        `json:"currentPlayerIndex"`
	Status             string                     `json:"status"`
	RowSelections      [board.Rows]int            `json:"rowSelections"`
	PlayerSelections   map[string]*SelectionState `json:"playerSelections"`
	TableCount         int                        `json:"tableCount"`
	LastTableResetDate string                     `json:"lastTableResetDate"`
	GlobalTableNumber  int                        `json:"globalTableNumber"`
	UserScores         map[string]UserScore       `json:"userScores"`
	PlayerGameStates   map[string]PlayerGameState `json:"playerGameStates"`
	Timestamp          int64                      `json:"timestamp"`
}

// Validate is the minimal structural check used when deciding whether a
// loaded snapshot is usable: the board must have exactly board.Size
// tiles. Value balance is re-verified (and self-healed) by the game
// loop's integrity sweep.
func (s *Snapshot) Validate() error {
	if len(s.Board) != board.Size {
		return fmt.Errorf("snapshot board has %d tiles, expected %d", len(s.Board), board.Size)
	}
	return nil
}
