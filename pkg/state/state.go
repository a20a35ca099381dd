package state

import (
	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
)

// StateManager shares the latest game snapshot between the game loop
// (writer) and the save worker (reader).
// Implementations must be thread-safe.
type StateManager interface {
	// Get returns the latest snapshot, or an error if none has been
	// set yet.
	Get() (*gametypes.Snapshot, error)
	// Set publishes a new snapshot. The snapshot must not be mutated
	// after it is set.
	Set(snapshot *gametypes.Snapshot) error
}
