package game

import (
	"testing"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCommandsRequireAdmin(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	directory.clear()

	enqueue(t, gm, clientID, messages.MessageTypeUpdatePoints, messages.UpdatePointsRequest{
		UserID: "2",
		Points: 1000,
	})
	gm.gameTick(mc.Now())

	var resp messages.CommandResponse
	directory.lastToClient(t, clientID, messages.MessageTypeCommandResponse, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "No autorizado", resp.Message)
	assert.Equal(t, 60000, gm.registry.Get("2").Score)
}

func TestUpdatePointsAdjustsScore(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")
	directory.clear()

	enqueue(t, gm, adminClient, messages.MessageTypeUpdatePoints, messages.UpdatePointsRequest{
		UserID: "1",
		Points: -5000,
	})
	gm.gameTick(mc.Now())

	assert.Equal(t, 55000, gm.registry.Get("1").Score)

	var resp messages.CommandResponse
	directory.lastToClient(t, adminClient, messages.MessageTypeCommandResponse, &resp)
	assert.True(t, resp.Success)

	var score messages.ForceScoreUpdatePayload
	directory.lastToUser(t, "1", messages.MessageTypeForceScoreUpdate, &score)
	assert.Equal(t, 55000, score.Score)
}

func TestDirectSetPointsBelowThresholdLocks(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")
	directory.clear()

	enqueue(t, gm, adminClient, messages.MessageTypeDirectSetPoints, messages.DirectSetPointsRequest{
		UserID:    "1",
		NewPoints: constants.ScoreLockThreshold,
	})
	gm.gameTick(mc.Now())

	user := gm.registry.Get("1")
	assert.Equal(t, constants.ScoreLockThreshold, user.Score)
	assert.True(t, user.IsLockedDueToScore)
	// The sole player just lost eligibility, so the game idles.
	assert.Nil(t, gm.gameState.CurrentPlayer)
}

func TestRechargePointsRestoresStartingScoreAndUnlocks(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")

	user := gm.registry.Get("1")
	user.Score = 10000
	user.IsLockedDueToScore = true

	enqueue(t, gm, adminClient, messages.MessageTypeRechargePoints, messages.TargetUserRequest{UserID: "1"})
	gm.gameTick(mc.Now())

	assert.Equal(t, constants.StartingScore, user.Score)
	assert.False(t, user.IsLockedDueToScore)
}

func TestToggleBlockUserRotatesAwayFromBlockedCurrent(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	loginAndJoin(t, gm, mc, "jugador2", "clave2")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")
	require.Equal(t, "1", gm.gameState.CurrentPlayer.ID)
	directory.clear()

	enqueue(t, gm, adminClient, messages.MessageTypeToggleBlockUser, messages.TargetUserRequest{UserID: "1"})
	gm.gameTick(mc.Now())

	assert.True(t, gm.registry.Get("1").IsBlocked)
	require.NotNil(t, gm.gameState.CurrentPlayer)
	assert.Equal(t, "2", gm.gameState.CurrentPlayer.ID)

	var payload messages.BlockStatusChangedPayload
	directory.lastToUser(t, "1", messages.MessageTypeBlockStatusChanged, &payload)
	require.NotNil(t, payload.IsBlocked)
	assert.True(t, *payload.IsBlocked)

	// Toggling again unblocks.
	enqueue(t, gm, adminClient, messages.MessageTypeToggleBlockUser, messages.TargetUserRequest{UserID: "1"})
	gm.gameTick(mc.Now())
	assert.False(t, gm.registry.Get("1").IsBlocked)
}

func TestUnlockUserScoreClearsLockAndResumesIdleGame(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")

	user := gm.registry.Get("1")
	user.Score = constants.ScoreLockThreshold
	user.IsLockedDueToScore = true
	gm.startTurn(mc.Now())
	require.Nil(t, gm.gameState.CurrentPlayer)

	enqueue(t, gm, adminClient, messages.MessageTypeUnlockUserScore, messages.TargetUserRequest{UserID: "1"})
	gm.gameTick(mc.Now())

	assert.False(t, user.IsLockedDueToScore)
	require.NotNil(t, gm.gameState.CurrentPlayer)
	assert.Equal(t, "1", gm.gameState.CurrentPlayer.ID)
}

func TestAdminResetTablesClearsCounters(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")

	gm.gameState.TableCount = 12
	gm.registry.Get("1").TablesPlayed = 4

	enqueue(t, gm, adminClient, messages.MessageTypeAdminResetTables, nil)
	gm.gameTick(mc.Now())

	assert.Equal(t, 0, gm.gameState.TableCount)
	assert.Equal(t, 0, gm.registry.Get("1").TablesPlayed)
	assert.Equal(t, mc.Now().Format("2006-01-02"), gm.gameState.LastTableResetDate)
}

func TestUnlockTablesResetsSingleUser(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")
	gm.registry.Get("1").TablesPlayed = 3
	gm.registry.Get("2").TablesPlayed = 5

	enqueue(t, gm, adminClient, messages.MessageTypeUnlockTables, messages.TargetUserRequest{UserID: "1"})
	gm.gameTick(mc.Now())

	assert.Equal(t, 0, gm.registry.Get("1").TablesPlayed)
	assert.Equal(t, 5, gm.registry.Get("2").TablesPlayed)
}

func TestGetPlayersReturnsAdminView(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")
	gm.registry.Get("1").Score = 42000
	directory.clear()

	enqueue(t, gm, adminClient, messages.MessageTypeGetPlayers, nil)
	gm.gameTick(mc.Now())

	var resp messages.PlayersListPayload
	directory.lastToClient(t, adminClient, messages.MessageTypePlayersList, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Players, 10)
	assert.Equal(t, "1", resp.Players[0].ID)
	assert.Equal(t, 42000, resp.Players[0].Score)
	assert.True(t, resp.Players[0].IsConnected)
	assert.False(t, resp.Players[1].IsConnected)
}

func TestResetGameRestoresDefaults(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	loginAndJoin(t, gm, mc, "jugador2", "clave2")
	adminClient := loginAndJoin(t, gm, mc, "admin", "admin123")

	gm.registry.Get("1").Score = 9000
	gm.registry.Get("1").IsLockedDueToScore = true
	gm.registry.Get("2").IsBlocked = true
	gm.gameState.GlobalTableNumber = 55
	gm.gameState.Board[2].Revealed = true
	gm.gameState.SelectionsFor("1").Total = 3

	enqueue(t, gm, adminClient, messages.MessageTypeResetGame, nil)
	gm.gameTick(mc.Now())

	gs := gm.gameState
	assert.Equal(t, constants.StartingScore, gm.registry.Get("1").Score)
	assert.False(t, gm.registry.Get("1").IsLockedDueToScore)
	assert.False(t, gm.registry.Get("2").IsBlocked)
	assert.Equal(t, 1, gs.GlobalTableNumber)
	for i := range gs.Board {
		assert.False(t, gs.Board[i].Revealed)
	}
	assert.Equal(t, 0, gs.SelectionsFor("1").Total)
	require.Len(t, gs.Players, 2)
	assert.True(t, gs.Players[0].IsConnected)
	assert.True(t, gs.Players[1].IsConnected)
	require.NotNil(t, gs.CurrentPlayer)
	assert.Len(t, gs.Board, board.Size)
}
