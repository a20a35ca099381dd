package constants

import "time"

const (
	// DefaultTurnDuration is how long a player has to make selections
	// once their turn starts. Earlier deployments ran 4s.
	DefaultTurnDuration = 6 * time.Second
	// TurnAdvanceGraceDelay is the pause between announcing a turn
	// timeout (or early end) and actually rotating to the next player,
	// so a last-moment selection is not dropped before the client sees
	// the timeout.
	TurnAdvanceGraceDelay = 500 * time.Millisecond

	// ScoreLockThreshold locks a non-admin player out of the rotation
	// while their score is at or below it.
	ScoreLockThreshold = 23000
	// StartingScore is the score assigned to non-admin users on a full
	// game reset and by rechargePoints.
	StartingScore = 60000

	// MaxSelectionsPerRow caps how many tiles one player may reveal in
	// a single row per board.
	MaxSelectionsPerRow = 2

	// MaxTableNumber is where the global table counter wraps back to 1.
	MaxTableNumber = 9999

	// IntegrityCheckInterval is how often the board invariants are
	// re-verified by the game loop.
	IntegrityCheckInterval = 30 * time.Second
	// IdlePurgeTimeout is how long per-player bookkeeping entries are
	// kept after the player was last seen. Player records themselves
	// are never purged.
	IdlePurgeTimeout = 24 * time.Hour

	// SaveDebounceWindow is the idle window for coalescing non-critical
	// persistence writes.
	SaveDebounceWindow = 2 * time.Second
)
