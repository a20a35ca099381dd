package game

import (
	"time"

	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/sirupsen/logrus"
)

// eligible reports whether a player may hold the turn: connected, not
// blocked, not locked by score.
func (gm *GameManager) eligible(p *types.Player) bool {
	if !p.IsConnected {
		return false
	}
	u := gm.registry.Get(p.ID)
	if u == nil {
		return false
	}
	return !u.IsBlocked && !u.IsLockedDueToScore
}

func (gm *GameManager) eligibleCount() int {
	n := 0
	for _, p := range gm.gameState.Players {
		if gm.eligible(p) {
			n++
		}
	}
	return n
}

// startTurn hands the turn to the next eligible player and arms the
// countdown. With no eligible player the game idles with no current
// player until one shows up. With exactly one, that player keeps the
// turn indefinitely.
func (gm *GameManager) startTurn(t time.Time) {
	gs := gm.gameState
	gm.turnDeadline = time.Time{}
	gm.advanceAt = time.Time{}

	next := gm.nextEligibleIndex()
	if next < 0 {
		if gs.CurrentPlayer != nil {
			logrus.Info("No eligible player, game is idle")
		}
		gs.CurrentPlayer = nil
		gs.TurnStartTime = 0
		gm.broadcastGameState()
		return
	}

	gs.CurrentPlayerIndex = next
	gs.CurrentPlayer = gs.Players[next]
	gs.Status = types.StatusPlaying
	gs.TurnStartTime = t.UnixMilli()
	gs.RowSelections = gs.SelectionsFor(gs.CurrentPlayer.ID).Rows
	gm.turnDeadline = t.Add(gm.turnDuration)

	logrus.Debugf("Turn started for player %s (%s)", gs.CurrentPlayer.ID, gs.CurrentPlayer.Username)
	gm.broadcastGameState()
	gm.requestSave(false)
}

// nextEligibleIndex scans forward from the current index, wrapping at
// most once. -1 means nobody is eligible.
func (gm *GameManager) nextEligibleIndex() int {
	gs := gm.gameState
	if len(gs.Players) == 0 {
		return -1
	}
	for i := 1; i <= len(gs.Players); i++ {
		idx := (gs.CurrentPlayerIndex + i) % len(gs.Players)
		if gm.eligible(gs.Players[idx]) {
			return idx
		}
	}
	return -1
}

// scheduleAdvance arms the short grace delay between announcing a turn
// end and actually rotating, so clients can render the timeout first.
func (gm *GameManager) scheduleAdvance(t time.Time) {
	gm.turnDeadline = time.Time{}
	gm.advanceAt = t.Add(constants.TurnAdvanceGraceDelay)
}

// updateTurnState advances deadline-driven transitions: pending
// rotations first, then countdown expiry.
func (gm *GameManager) updateTurnState(t time.Time) {
	if !gm.advanceAt.IsZero() && !t.Before(gm.advanceAt) {
		gm.advanceAt = time.Time{}
		gm.startTurn(t)
		return
	}

	if gm.turnDeadline.IsZero() || t.Before(gm.turnDeadline) {
		return
	}
	gm.turnDeadline = time.Time{}

	current := gm.gameState.CurrentPlayer
	if current == nil {
		return
	}
	logrus.Debugf("Turn timed out for player %s", current.ID)
	gm.broadcast(messages.MessageTypeTurnTimeout, messages.TurnTimeoutPayload{PlayerID: current.ID})
	gm.scheduleAdvance(t)
}
