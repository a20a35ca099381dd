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

// requireAdmin resolves the admin user behind a connection. Non-admin
// callers get a failed commandResponse and a nil user.
func (gm *GameManager) requireAdmin(clientID uuid.UUID) *types.User {
	userID, ok := gm.clientDirectory.UserForClient(clientID)
	if ok {
		if user := gm.registry.Get(userID); user != nil && user.IsAdmin {
			return user
		}
	}
	logrus.Warnf("Rejected admin command from client %s", clientID)
	gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
		Success: false,
		Message: "No autorizado",
	})
	return nil
}

func (gm *GameManager) commandOK(clientID uuid.UUID, message string) {
	gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
		Success: true,
		Message: message,
	})
}

func (gm *GameManager) handleGetPlayers(clientID uuid.UUID) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	gm.sendTo(clientID, messages.MessageTypePlayersList, messages.PlayersListPayload{
		Success: true,
		Players: gm.adminPlayerViews(),
	})
}

func (gm *GameManager) handleUpdatePoints(clientID uuid.UUID, payload json.RawMessage) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.UpdatePointsRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	target.Score += req.Points
	logrus.Infof("Admin adjusted user %s score by %+d to %d", target.ID, req.Points, target.Score)
	gm.afterScoreChange(target)
	gm.commandOK(clientID, fmt.Sprintf("Puntos actualizados para %s", target.Username))
}

func (gm *GameManager) handleDirectSetPoints(clientID uuid.UUID, payload json.RawMessage) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.DirectSetPointsRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	target.Score = req.NewPoints
	logrus.Infof("Admin set user %s score to %d", target.ID, target.Score)
	gm.afterScoreChange(target)
	gm.commandOK(clientID, fmt.Sprintf("Puntaje fijado para %s", target.Username))
}

func (gm *GameManager) handleRechargePoints(clientID uuid.UUID, payload json.RawMessage) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.TargetUserRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	target.Score = constants.StartingScore
	logrus.Infof("Admin recharged user %s to %d points", target.ID, target.Score)
	gm.afterScoreChange(target)
	gm.commandOK(clientID, fmt.Sprintf("Puntos recargados para %s", target.Username))
}

// afterScoreChange is the shared tail of every admin score mutation:
// re-check the lock threshold, push the new score to the player, keep
// admin dashboards fresh, persist.
func (gm *GameManager) afterScoreChange(target *types.User) {
	gm.reconcileScoreLock(target)
	gm.sendToUser(target.ID, messages.MessageTypeForceScoreUpdate, messages.ForceScoreUpdatePayload{
		Score: target.Score,
	})
	gm.broadcastPlayersUpdate()
	gm.requestSave(true)
}

func (gm *GameManager) handleToggleBlockUser(clientID uuid.UUID, payload json.RawMessage, t time.Time) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.TargetUserRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	target.IsBlocked = !target.IsBlocked
	logrus.Infof("Admin set user %s blocked=%v", target.ID, target.IsBlocked)

	blocked := target.IsBlocked
	message := "Tu cuenta fue desbloqueada"
	if blocked {
		message = "Tu cuenta fue bloqueada por el administrador"
	}
	gm.sendToUser(target.ID, messages.MessageTypeBlockStatusChanged, messages.BlockStatusChangedPayload{
		IsBlocked: &blocked,
		Message:   message,
	})

	gs := gm.gameState
	if blocked && gs.CurrentPlayer != nil && gs.CurrentPlayer.ID == target.ID {
		gm.startTurn(t)
	} else if !blocked && gs.CurrentPlayer == nil {
		gm.startTurn(t)
	} else {
		gm.broadcastGameState()
	}

	gm.broadcastPlayersUpdate()
	gm.requestSave(true)
	gm.commandOK(clientID, fmt.Sprintf("Estado de bloqueo cambiado para %s", target.Username))
}

func (gm *GameManager) handleUnlockUserScore(clientID uuid.UUID, payload json.RawMessage, t time.Time) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.TargetUserRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	// Explicit unlock overrides the threshold until the next reveal
	// re-evaluates it.
	target.IsLockedDueToScore = false
	logrus.Infof("Admin unlocked user %s score", target.ID)

	locked := false
	gm.sendToUser(target.ID, messages.MessageTypeBlockStatusChanged, messages.BlockStatusChangedPayload{
		IsLockedDueToScore: &locked,
		Message:            "Tu puntaje fue desbloqueado por el administrador",
	})

	if gm.gameState.CurrentPlayer == nil {
		gm.startTurn(t)
	} else {
		gm.broadcastGameState()
	}
	gm.broadcastPlayersUpdate()
	gm.requestSave(true)
	gm.commandOK(clientID, fmt.Sprintf("Puntaje desbloqueado para %s", target.Username))
}

func (gm *GameManager) handleUnlockTables(clientID uuid.UUID, payload json.RawMessage) {
	if gm.requireAdmin(clientID) == nil {
		return
	}
	var req messages.TargetUserRequest
	if !unmarshalPayload(payload, &req) {
		return
	}
	target := gm.registry.Get(req.UserID)
	if target == nil || target.IsAdmin {
		gm.sendTo(clientID, messages.MessageTypeCommandResponse, messages.CommandResponse{
			Success: false,
			Message: "Jugador no encontrado",
		})
		return
	}

	target.TablesPlayed = 0
	logrus.Infof("Admin reset tables played for user %s", target.ID)
	gm.broadcastPlayersUpdate()
	gm.requestSave(false)
	gm.commandOK(clientID, fmt.Sprintf("Mesas reiniciadas para %s", target.Username))
}

func (gm *GameManager) handleAdminResetTables(clientID uuid.UUID, t time.Time) {
	if gm.requireAdmin(clientID) == nil {
		return
	}

	gs := gm.gameState
	gs.TableCount = 0
	gs.LastTableResetDate = t.Format("2006-01-02")
	for _, u := range gm.registry.NonAdmins() {
		u.TablesPlayed = 0
	}
	logrus.Info("Admin reset the table counters")

	gm.broadcastPlayersUpdate()
	gm.requestSave(true)
	gm.commandOK(clientID, "Contador de mesas reiniciado")
}

// handleResetGame rebuilds the whole game: fresh board, starting
// scores, cleared flags, table number back to 1. Seats survive, with
// connection state resynced against the actually live connections.
func (gm *GameManager) handleResetGame(clientID uuid.UUID, t time.Time) {
	if gm.requireAdmin(clientID) == nil {
		return
	}

	gs := gm.gameState
	gs.Status = types.StatusResetting

	for _, u := range gm.registry.NonAdmins() {
		u.Score = constants.StartingScore
		u.IsBlocked = false
		u.IsLockedDueToScore = false
	}

	gs.Board = gm.boardGenerator.Generate()
	gs.RowSelections = [board.Rows]int{}
	gs.PlayerSelections = make(map[string]*types.SelectionState)
	gs.GlobalTableNumber = 1
	gs.CurrentPlayer = nil
	gs.CurrentPlayerIndex = 0
	gs.TurnStartTime = 0
	gm.turnDeadline = time.Time{}
	gm.advanceAt = time.Time{}

	bound := gm.clientDirectory.BoundUsers()
	for _, p := range gs.Players {
		connID, connected := bound[p.ID]
		p.IsConnected = connected
		if connected {
			p.ConnectionID = connID
		} else {
			p.ConnectionID = uuid.Nil
		}
		gs.SelectionsFor(p.ID)
	}

	for _, u := range gm.registry.NonAdmins() {
		gm.sendToUser(u.ID, messages.MessageTypeForceScoreUpdate, messages.ForceScoreUpdatePayload{
			Score: u.Score,
		})
	}
	logrus.Info("Admin reset the game")

	gs.Status = types.StatusPlaying
	gm.broadcastPlayersUpdate()
	gm.startTurn(t)
	gm.requestSave(true)
	gm.commandOK(clientID, "Juego reiniciado")
}
