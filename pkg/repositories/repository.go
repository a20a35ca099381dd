package repositories

import (
	"context"

	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
)

// Repository is the primary durable store for the game snapshot.
type Repository interface {
	Close(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot *gametypes.Snapshot) error
	LoadSnapshot(ctx context.Context) (*gametypes.Snapshot, error)
}
