package game

import (
	"encoding/json"
	"testing"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findTile returns the index of an unrevealed tile in the given row
// with the requested sign.
func findTile(t *testing.T, b board.Board, row int, positive bool) int {
	t.Helper()
	for i := row * board.TilesPerRow; i < (row+1)*board.TilesPerRow; i++ {
		if b[i].Revealed {
			continue
		}
		if positive == (b[i].Value > 0) {
			return i
		}
	}
	t.Fatalf("no unrevealed %v tile in row %d", positive, row)
	return -1
}

func TestSelectTileRevealsAndScores(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	index := findTile(t, gm.gameState.Board, 0, true)
	directory.clear()

	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	tile := gm.gameState.Board[index]
	assert.True(t, tile.Revealed)
	assert.Equal(t, "jugador1", tile.SelectedBy)
	assert.Equal(t, mc.Now().UnixMilli(), tile.SelectedAt)
	assert.Equal(t, 60000+board.TileValue, gm.registry.Get("1").Score)
	assert.Equal(t, 1, gm.gameState.RowSelections[0])

	selected := directory.broadcastsOfType(messages.MessageTypeTileSelected)
	require.Len(t, selected, 1)
	var payload messages.TileSelectedPayload
	require.NoError(t, json.Unmarshal(selected[0].Payload, &payload))
	assert.Equal(t, index, payload.TileIndex)
	assert.Equal(t, board.TileValue, payload.TileValue)
	assert.Equal(t, "1", payload.PlayerID)
	assert.Equal(t, 60000+board.TileValue, payload.NewScore)
	assert.Equal(t, "win", payload.SoundType)
}

func TestSelectTileIsIdempotent(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	index := findTile(t, gm.gameState.Board, 0, true)

	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())
	scoreAfterFirst := gm.registry.Get("1").Score
	directory.clear()

	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.Equal(t, scoreAfterFirst, gm.registry.Get("1").Score)
	assert.Empty(t, directory.broadcastsOfType(messages.MessageTypeTileSelected))
	assert.Equal(t, 1, gm.gameState.SelectionsFor("1").Total)
}

func TestSelectTileNegativeValuePlaysLoseSound(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	index := findTile(t, gm.gameState.Board, 0, false)
	directory.clear()

	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.Equal(t, 60000-board.TileValue, gm.registry.Get("1").Score)
	selected := directory.broadcastsOfType(messages.MessageTypeTileSelected)
	require.Len(t, selected, 1)
	var payload messages.TileSelectedPayload
	require.NoError(t, json.Unmarshal(selected[0].Payload, &payload))
	assert.Equal(t, "lose", payload.SoundType)
}

func TestSelectTileEnforcesRowLimit(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")

	first := findTile(t, gm.gameState.Board, 0, true)
	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: first})
	gm.gameTick(mc.Now())
	second := findTile(t, gm.gameState.Board, 0, true)
	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: second})
	gm.gameTick(mc.Now())
	require.Equal(t, constants.MaxSelectionsPerRow, gm.gameState.SelectionsFor("1").Rows[0])

	third := findTile(t, gm.gameState.Board, 0, false)
	directory.clear()
	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: third})
	gm.gameTick(mc.Now())

	assert.False(t, gm.gameState.Board[third].Revealed)
	var text messages.TextMessagePayload
	directory.lastToClient(t, clientID, messages.MessageTypeMessage, &text)
	assert.Contains(t, text.Text, "hilera")
}

func TestSelectTileRejectsOutOfTurn(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	client2 := loginAndJoin(t, gm, mc, "jugador2", "clave2")
	require.Equal(t, "1", gm.gameState.CurrentPlayer.ID)

	index := findTile(t, gm.gameState.Board, 0, true)
	directory.clear()
	enqueue(t, gm, client2, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.False(t, gm.gameState.Board[index].Revealed)
	var text messages.TextMessagePayload
	directory.lastToClient(t, client2, messages.MessageTypeMessage, &text)
	assert.Equal(t, "No es tu turno", text.Text)
}

func TestSelectTileRejectsAfterCountdown(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	index := findTile(t, gm.gameState.Board, 0, true)

	// Past the countdown but before the tick notices: a stale request.
	mc.Advance(gm.turnDuration + constants.TurnAdvanceGraceDelay)
	directory.clear()
	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.False(t, gm.gameState.Board[index].Revealed)
	var text messages.TextMessagePayload
	directory.lastToClient(t, clientID, messages.MessageTypeMessage, &text)
	assert.Contains(t, text.Text, "Tiempo agotado")
}

func TestSelectTileIgnoresOutOfRangeIndex(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	directory.clear()

	for _, index := range []int{-1, board.Size, 1000} {
		enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	}
	gm.gameTick(mc.Now())

	assert.Empty(t, directory.broadcastsOfType(messages.MessageTypeTileSelected))
	assert.Equal(t, 0, gm.gameState.SelectionsFor("1").Total)
}

func TestSelectTileBlockedPlayerIsRefused(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	gm.registry.Get("1").IsBlocked = true
	index := findTile(t, gm.gameState.Board, 0, true)
	directory.clear()

	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.False(t, gm.gameState.Board[index].Revealed)
	var payload messages.BlockStatusChangedPayload
	directory.lastToClient(t, clientID, messages.MessageTypeBlockStatusChanged, &payload)
	require.NotNil(t, payload.IsBlocked)
	assert.True(t, *payload.IsBlocked)
}

func TestScoreLockCrossingThreshold(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	clientID := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	user := gm.registry.Get("1")
	// One losing tile away from the floor.
	user.Score = constants.ScoreLockThreshold + board.TileValue

	index := findTile(t, gm.gameState.Board, 0, false)
	directory.clear()
	enqueue(t, gm, clientID, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	assert.Equal(t, constants.ScoreLockThreshold, user.Score)
	assert.True(t, user.IsLockedDueToScore)

	var payload messages.BlockStatusChangedPayload
	directory.lastToUser(t, "1", messages.MessageTypeBlockStatusChanged, &payload)
	require.NotNil(t, payload.IsLockedDueToScore)
	assert.True(t, *payload.IsLockedDueToScore)

	// A locked sole player gives up the turn and the game idles.
	assert.Nil(t, gm.gameState.CurrentPlayer)
}

func TestLockCrossingRevealKeepsSelectorsCounters(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	client1 := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	loginAndJoin(t, gm, mc, "jugador2", "clave2")
	require.Equal(t, "1", gm.gameState.CurrentPlayer.ID)
	gm.registry.Get("1").Score = constants.ScoreLockThreshold + board.TileValue

	index := findTile(t, gm.gameState.Board, 0, false)
	directory.clear()
	enqueue(t, gm, client1, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
	gm.gameTick(mc.Now())

	// The reveal event carries the selector's own row counters, not the
	// next player's counters loaded by the turnover.
	selected := directory.broadcastsOfType(messages.MessageTypeTileSelected)
	require.Len(t, selected, 1)
	var payload messages.TileSelectedPayload
	require.NoError(t, json.Unmarshal(selected[0].Payload, &payload))
	assert.Equal(t, [board.Rows]int{1, 0, 0, 0}, payload.RowSelections)

	assert.True(t, gm.registry.Get("1").IsLockedDueToScore)
	require.NotNil(t, gm.gameState.CurrentPlayer)
	assert.Equal(t, "2", gm.gameState.CurrentPlayer.ID)

	// The reveal must go out before the turnover's gameState refresh so
	// clients never apply stale counters last.
	revealAt, stateAt := -1, -1
	for i, msg := range directory.broadcasts {
		switch msg.Type {
		case messages.MessageTypeTileSelected:
			revealAt = i
		case messages.MessageTypeGameState:
			stateAt = i
		}
	}
	require.GreaterOrEqual(t, stateAt, 0)
	assert.Less(t, revealAt, stateAt)
}

func TestRowExhaustionEndsTurnEarly(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	client1 := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	loginAndJoin(t, gm, mc, "jugador2", "clave2")
	require.Equal(t, "1", gm.gameState.CurrentPlayer.ID)

	// Reveal two tiles in every row, refreshing the countdown by
	// re-stamping the turn start so the reveals stay in time.
	for row := 0; row < board.Rows; row++ {
		for i := 0; i < constants.MaxSelectionsPerRow; i++ {
			gm.gameState.TurnStartTime = mc.Now().UnixMilli()
			index := findTile(t, gm.gameState.Board, row, i == 0)
			enqueue(t, gm, client1, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: index})
			gm.gameTick(mc.Now())
		}
	}

	require.Equal(t, board.Rows*constants.MaxSelectionsPerRow, gm.gameState.SelectionsFor("1").Total)
	assert.False(t, gm.advanceAt.IsZero(), "turn advance should be pending")

	mc.Advance(constants.TurnAdvanceGraceDelay)
	gm.gameTick(mc.Now())
	assert.Equal(t, "2", gm.gameState.CurrentPlayer.ID)
}

func TestBoardRotationPreservesScores(t *testing.T) {
	gm, directory, mc := newTestGameManager(t)

	client1 := loginAndJoin(t, gm, mc, "jugador1", "clave1")
	loginAndJoin(t, gm, mc, "jugador2", "clave2")
	gm.registry.Get("1").Score = 48000
	gm.gameState.SelectionsFor("1").Total = 5

	// Reveal everything but one tile, then complete the board through
	// the reveal path.
	for i := 0; i < board.Size-1; i++ {
		gm.gameState.Board[i].Revealed = true
	}
	last := board.Size - 1
	sel := gm.gameState.SelectionsFor("1")
	sel.Rows[board.RowOf(last)] = 0
	lastValue := gm.gameState.Board[last].Value
	gm.gameState.TurnStartTime = mc.Now().UnixMilli()
	require.Equal(t, "1", gm.gameState.CurrentPlayer.ID)

	directory.clear()
	enqueue(t, gm, client1, messages.MessageTypeSelectTile, messages.SelectTileRequest{TileIndex: last})
	gm.gameTick(mc.Now())

	gs := gm.gameState
	assert.Equal(t, 2, gs.GlobalTableNumber)
	assert.Equal(t, 1, gs.TableCount)
	assert.Equal(t, 48000+lastValue, gm.registry.Get("1").Score)
	for i := range gs.Board {
		assert.False(t, gs.Board[i].Revealed)
	}
	for _, sel := range gs.PlayerSelections {
		assert.Equal(t, 0, sel.Total)
	}

	resets := directory.broadcastsOfType(messages.MessageTypeBoardReset)
	require.Len(t, resets, 1)
	var payload messages.BoardResetPayload
	require.NoError(t, json.Unmarshal(resets[0].Payload, &payload))
	assert.Equal(t, 2, payload.NewTableNumber)
	require.Len(t, payload.NewBoard, board.Size)
	for _, tile := range payload.NewBoard {
		assert.Nil(t, tile.Value)
	}
}

func TestTableNumberWrapsAtMaximum(t *testing.T) {
	gm, _, mc := newTestGameManager(t)

	loginAndJoin(t, gm, mc, "jugador1", "clave1")
	gm.gameState.GlobalTableNumber = constants.MaxTableNumber

	gm.rotateBoard(mc.Now())

	assert.Equal(t, 1, gm.gameState.GlobalTableNumber)
}
