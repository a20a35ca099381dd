package game

import (
	"encoding/json"
	"time"

	"github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (gm *GameManager) handleLogin(clientID uuid.UUID, payload json.RawMessage, t time.Time) {
	var req messages.LoginRequest
	if !unmarshalPayload(payload, &req) {
		return
	}

	user, err := gm.registry.Authenticate(req.Username, req.Password)
	if err != nil {
		logrus.Infof("Failed login attempt for %q from client %s", req.Username, clientID)
		gm.sendTo(clientID, messages.MessageTypeLoginResponse, messages.LoginResponse{
			Success: false,
			Message: "Credenciales incorrectas",
		})
		return
	}

	gm.bindSession(clientID, user, t)
	gm.touch(user.ID, t)

	gm.sendTo(clientID, messages.MessageTypeLoginResponse, messages.LoginResponse{
		Success:            true,
		UserID:             user.ID,
		Username:           user.Username,
		Score:              user.Score,
		IsAdmin:            user.IsAdmin,
		IsBlocked:          user.IsBlocked,
		IsLockedDueToScore: user.IsLockedDueToScore,
	})
	logrus.Infof("User %s logged in on client %s", user.ID, clientID)
}

func (gm *GameManager) handleReconnectUser(clientID uuid.UUID, payload json.RawMessage, t time.Time) {
	var req messages.ReconnectUserRequest
	if !unmarshalPayload(payload, &req) {
		return
	}

	user := gm.registry.Get(req.UserID)
	if user == nil {
		logrus.Warnf("Reconnect attempt for unknown user %q from client %s", req.UserID, clientID)
		return
	}

	gm.bindSession(clientID, user, t)
	gm.touch(user.ID, t)
	gm.sendGameState(clientID)
	logrus.Infof("User %s reconnected on client %s", user.ID, clientID)
}

// bindSession binds a connection to a user, closing any superseded
// session, and re-links the user's player record if one exists.
func (gm *GameManager) bindSession(clientID uuid.UUID, user *types.User, t time.Time) {
	previous, superseded := gm.clientDirectory.BindUser(clientID, user.ID)
	if superseded {
		gm.sendTo(previous, messages.MessageTypeSessionClosed, messages.SessionClosedPayload{
			Message: "Sesión iniciada desde otro dispositivo",
		})
		logrus.Infof("Superseded session %s for user %s", previous, user.ID)
	}

	player := gm.gameState.PlayerByID(user.ID)
	if player == nil {
		return
	}

	wasConnected := player.IsConnected
	player.ConnectionID = clientID
	player.IsConnected = true
	if !wasConnected {
		gm.broadcast(messages.MessageTypePlayerConnectionChanged, messages.PlayerConnectionChangedPayload{
			PlayerID:    player.ID,
			IsConnected: true,
			Username:    player.Username,
		})
		// Coming back to an idle game claims the turn.
		if gm.gameState.CurrentPlayer == nil {
			gm.startTurn(t)
		} else {
			gm.broadcastGameState()
		}
		gm.requestSave(false)
	}
}

func (gm *GameManager) handleJoinGame(clientID uuid.UUID, t time.Time) {
	userID, ok := gm.clientDirectory.UserForClient(clientID)
	if !ok {
		logrus.Warnf("joinGame from unauthenticated client %s", clientID)
		return
	}
	user := gm.registry.Get(userID)
	if user == nil {
		return
	}
	if user.IsAdmin {
		// Admins observe, they never hold a seat.
		gm.sendGameState(clientID)
		return
	}

	gs := gm.gameState
	player := gs.PlayerByID(userID)
	if player != nil {
		// Already seated: a fresh join is a reconnect.
		player.ConnectionID = clientID
		if !player.IsConnected {
			player.IsConnected = true
			gm.broadcast(messages.MessageTypePlayerConnectionChanged, messages.PlayerConnectionChangedPayload{
				PlayerID:    player.ID,
				IsConnected: true,
				Username:    player.Username,
			})
		}
	} else {
		player = &types.Player{
			ID:           user.ID,
			Username:     user.Username,
			ConnectionID: clientID,
			IsConnected:  true,
		}
		gs.Players = append(gs.Players, player)
		gs.SelectionsFor(user.ID)
		logrus.Infof("Player %s joined the game", user.ID)
	}

	gm.touch(userID, t)
	if gs.CurrentPlayer == nil {
		gm.startTurn(t)
	} else {
		gm.broadcastGameState()
	}
	gm.requestSave(false)
}

func (gm *GameManager) handleLeaveGame(clientID uuid.UUID, t time.Time) {
	userID, ok := gm.clientDirectory.UserForClient(clientID)
	if !ok {
		return
	}

	gs := gm.gameState
	player := gs.PlayerByID(userID)
	if player == nil {
		return
	}

	wasCurrent := gs.CurrentPlayer != nil && gs.CurrentPlayer.ID == userID
	for i, p := range gs.Players {
		if p.ID == userID {
			gs.Players = append(gs.Players[:i], gs.Players[i+1:]...)
			if i < gs.CurrentPlayerIndex {
				gs.CurrentPlayerIndex--
			}
			break
		}
	}
	if gs.CurrentPlayerIndex >= len(gs.Players) {
		gs.CurrentPlayerIndex = 0
	}
	delete(gs.PlayerSelections, userID)
	logrus.Infof("Player %s left the game", userID)

	if wasCurrent {
		gm.startTurn(t)
	} else {
		gm.broadcastGameState()
	}
	gm.requestSave(false)
}

// handleConnectionLost marks the player disconnected but keeps the seat
// so reconnection picks up where it left off.
func (gm *GameManager) handleConnectionLost(clientID uuid.UUID, t time.Time) {
	gs := gm.gameState
	for _, player := range gs.Players {
		if player.ConnectionID != clientID {
			continue
		}
		player.IsConnected = false
		player.ConnectionID = uuid.Nil
		gm.touch(player.ID, t)
		logrus.Infof("Player %s disconnected", player.ID)

		gm.broadcast(messages.MessageTypePlayerConnectionChanged, messages.PlayerConnectionChangedPayload{
			PlayerID:    player.ID,
			IsConnected: false,
			Username:    player.Username,
		})

		if gs.CurrentPlayer != nil && gs.CurrentPlayer.ID == player.ID {
			gm.startTurn(t)
		} else {
			gm.broadcastGameState()
		}
		gm.requestSave(false)
		return
	}
}

func (gm *GameManager) handleSyncGameState(clientID uuid.UUID) {
	gm.sendGameState(clientID)
}

func (gm *GameManager) handleSyncScore(clientID uuid.UUID) {
	userID, ok := gm.clientDirectory.UserForClient(clientID)
	if !ok {
		return
	}
	user := gm.registry.Get(userID)
	if user == nil {
		return
	}
	gm.sendTo(clientID, messages.MessageTypeForceScoreUpdate, messages.ForceScoreUpdatePayload{
		Score: user.Score,
	})
}

func (gm *GameManager) handleSaveGameState(clientID uuid.UUID, t time.Time) {
	if userID, ok := gm.clientDirectory.UserForClient(clientID); ok {
		gm.touch(userID, t)
	}
	gm.requestSave(true)
}
