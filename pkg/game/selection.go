package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	soundTypeWin  = "win"
	soundTypeLose = "lose"
)

// handleSelectTile is the core reveal path. Validation happens in a
// fixed order; most rejections are silent because clients disable the
// board themselves and anything else is a stale or forged request.
func (gm *GameManager) handleSelectTile(clientID uuid.UUID, payload json.RawMessage, t time.Time) {
	var req messages.SelectTileRequest
	if !unmarshalPayload(payload, &req) {
		return
	}

	userID, ok := gm.clientDirectory.UserForClient(clientID)
	if !ok {
		return
	}
	user := gm.registry.Get(userID)
	if user == nil || user.IsAdmin {
		return
	}
	gs := gm.gameState
	player := gs.PlayerByID(userID)
	if player == nil {
		return
	}

	if user.IsBlocked || user.IsLockedDueToScore {
		blocked := user.IsBlocked
		locked := user.IsLockedDueToScore
		gm.sendTo(clientID, messages.MessageTypeBlockStatusChanged, messages.BlockStatusChangedPayload{
			IsBlocked:          &blocked,
			IsLockedDueToScore: &locked,
			Message:            "No puedes seleccionar fichas en este momento",
		})
		return
	}

	if len(gs.Players) > 1 && (gs.CurrentPlayer == nil || gs.CurrentPlayer.ID != userID) {
		gm.sendText(clientID, "No es tu turno")
		return
	}

	if gs.TurnStartTime > 0 && t.UnixMilli()-gs.TurnStartTime > gm.turnDuration.Milliseconds() {
		gm.sendText(clientID, "Tiempo agotado para este turno")
		return
	}

	if req.TileIndex < 0 || req.TileIndex >= len(gs.Board) {
		logrus.Warnf("Player %s selected out-of-range tile %d", userID, req.TileIndex)
		return
	}
	tile := &gs.Board[req.TileIndex]
	if tile.Revealed {
		// Duplicate click or a race against the broadcast; idempotent.
		return
	}

	row := board.RowOf(req.TileIndex)
	sel := gs.SelectionsFor(userID)
	if sel.Rows[row] >= constants.MaxSelectionsPerRow {
		gm.sendText(clientID, fmt.Sprintf("Ya has seleccionado %d fichas de la hilera %d", constants.MaxSelectionsPerRow, row+1))
		return
	}

	tile.Revealed = true
	tile.SelectedBy = player.Username
	tile.SelectedAt = t.UnixMilli()
	sel.Rows[row]++
	sel.Total++
	gs.RowSelections = sel.Rows
	rowSelections := sel.Rows
	user.Score += tile.Value
	gm.touch(userID, t)

	soundType := soundTypeWin
	if tile.Value < 0 {
		soundType = soundTypeLose
	}
	logrus.Infof("Player %s revealed tile %d (%+d), score now %d", userID, req.TileIndex, tile.Value, user.Score)

	// Emit the reveal before any turn side effects. A lock crossing or a
	// board rotation below rewrites the shared row counters and sends a
	// fresher gameState; the tileSelected event must carry the selector's
	// own counters and must not arrive after that refresh.
	gm.broadcast(messages.MessageTypeTileSelected, messages.TileSelectedPayload{
		TileIndex:     req.TileIndex,
		TileValue:     tile.Value,
		PlayerID:      userID,
		NewScore:      user.Score,
		RowSelections: rowSelections,
		SoundType:     soundType,
		Timestamp:     tile.SelectedAt,
	})
	gm.sendTo(clientID, messages.MessageTypeForceScoreUpdate, messages.ForceScoreUpdatePayload{
		Score: user.Score,
	})
	gm.requestSave(true)

	if gs.Board.Complete() {
		// Settle the lock flag first so the rotation never hands the
		// fresh board to a player who just crossed the floor.
		gm.reconcileScoreLock(user)
		gm.rotateBoard(t)
		return
	}
	if gm.reconcileScoreLock(user) && user.IsLockedDueToScore {
		// A locked current player already gave up the turn inside the
		// reconcile; nothing more to do this tick.
		return
	}
	if sel.Total >= board.Rows*constants.MaxSelectionsPerRow {
		logrus.Debugf("Player %s exhausted all row selections", userID)
		gm.scheduleAdvance(t)
	}
}

// reconcileScoreLock applies the score-lock threshold in both
// directions and reports whether the flag flipped. Crossing downward
// while holding the turn gives the turn up.
func (gm *GameManager) reconcileScoreLock(user *types.User) bool {
	shouldLock := user.Score <= constants.ScoreLockThreshold
	if shouldLock == user.IsLockedDueToScore {
		return false
	}
	user.IsLockedDueToScore = shouldLock

	locked := shouldLock
	message := "Tu puntaje fue desbloqueado"
	if locked {
		message = fmt.Sprintf("Tu puntaje llegó al límite de %d puntos. Contacta al administrador", constants.ScoreLockThreshold)
	}
	gm.sendToUser(user.ID, messages.MessageTypeBlockStatusChanged, messages.BlockStatusChangedPayload{
		IsLockedDueToScore: &locked,
		Message:            message,
	})
	gm.broadcastPlayersUpdate()
	logrus.Infof("User %s score lock is now %v (score %d)", user.ID, locked, user.Score)

	gs := gm.gameState
	if locked && gs.CurrentPlayer != nil && gs.CurrentPlayer.ID == user.ID {
		gm.startTurn(gm.clock.Now())
	} else if !locked && gs.CurrentPlayer == nil {
		gm.startTurn(gm.clock.Now())
	}
	return true
}

// rotateBoard swaps in a fresh board once every tile is revealed,
// advances the table counters and resets all selection state. Scores
// carry over untouched.
func (gm *GameManager) rotateBoard(t time.Time) {
	gs := gm.gameState

	for id, sel := range gs.PlayerSelections {
		if sel.Total > 0 {
			if u := gm.registry.Get(id); u != nil {
				u.TablesPlayed++
			}
		}
	}

	gs.Board = gm.boardGenerator.Generate()
	gs.TableCount++
	gs.GlobalTableNumber++
	if gs.GlobalTableNumber > constants.MaxTableNumber {
		gs.GlobalTableNumber = 1
	}
	gs.RowSelections = [board.Rows]int{}
	for id := range gs.PlayerSelections {
		gs.PlayerSelections[id] = &types.SelectionState{}
	}
	logrus.Infof("Board complete, rotating to table %d", gs.GlobalTableNumber)

	gm.broadcast(messages.MessageTypeBoardReset, messages.BoardResetPayload{
		Message:        fmt.Sprintf("Mesa completada. Iniciando mesa %d", gs.GlobalTableNumber),
		NewTableNumber: gs.GlobalTableNumber,
		NewBoard:       gm.boardView(gs.Board),
	})
	gm.broadcastPlayersUpdate()
	gm.requestSave(true)
	gm.startTurn(t)
}
