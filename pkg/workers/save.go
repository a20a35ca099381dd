package workers

import (
	"context"
	"fmt"
	"time"

	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/cbodonnell/memoria/pkg/repositories"
	"github.com/cbodonnell/memoria/pkg/snapshots"
	"github.com/cbodonnell/memoria/pkg/state"
	"github.com/sirupsen/logrus"
)

// SaveRequest asks the save worker to persist the latest snapshot.
// Critical requests (tile reveals, score changes) flush immediately;
// the rest are coalesced over the debounce window.
type SaveRequest struct {
	Critical bool
}

type SaveSnapshotWorker struct {
	repository      repositories.Repository
	snapshotStore   *snapshots.Store
	stateManager    state.StateManager
	saveRequestChan <-chan SaveRequest
	debounceWindow  time.Duration
}

type NewSaveSnapshotWorkerOptions struct {
	Repository      repositories.Repository
	SnapshotStore   *snapshots.Store
	StateManager    state.StateManager
	SaveRequestChan <-chan SaveRequest
	DebounceWindow  time.Duration
}

// NewSaveSnapshotWorker creates a new SaveSnapshotWorker.
// The worker reads the latest snapshot from the state manager at flush
// time, so coalesced requests always persist the newest state.
func NewSaveSnapshotWorker(opts NewSaveSnapshotWorkerOptions) *SaveSnapshotWorker {
	return &SaveSnapshotWorker{
		repository:      opts.Repository,
		snapshotStore:   opts.SnapshotStore,
		stateManager:    opts.StateManager,
		saveRequestChan: opts.SaveRequestChan,
		debounceWindow:  opts.DebounceWindow,
	}
}

func (w *SaveSnapshotWorker) Start(ctx context.Context) {
	debounce := time.NewTimer(w.debounceWindow)
	if !debounce.Stop() {
		<-debounce.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			if armed {
				w.flush(context.Background())
			}
			return
		case req := <-w.saveRequestChan:
			if req.Critical {
				if armed && !debounce.Stop() {
					<-debounce.C
				}
				armed = false
				w.flush(ctx)
				continue
			}
			if armed && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(w.debounceWindow)
			armed = true
		case <-debounce.C:
			armed = false
			w.flush(ctx)
		}
	}
}

// flush writes the latest snapshot to the primary store and the local
// tiers. Failures are logged, never fatal; if every local write fails
// too, a diagnostic line is appended to the error log and the game
// keeps running on in-memory state.
func (w *SaveSnapshotWorker) flush(ctx context.Context) {
	snapshot, err := w.stateManager.Get()
	if err != nil {
		logrus.Errorf("Failed to get current snapshot: %v", err)
		return
	}

	primaryErr := error(nil)
	if w.repository != nil {
		primaryErr = w.repository.SaveSnapshot(ctx, snapshot)
		if primaryErr != nil {
			logrus.Errorf("Failed to save snapshot to primary store: %v", primaryErr)
		}
	}

	localErr := w.snapshotStore.Save(snapshot)
	if localErr != nil {
		logrus.Errorf("Failed to save local snapshot: %v", localErr)
	}

	if primaryErr != nil && localErr != nil {
		w.snapshotStore.AppendErrorLog(fmt.Sprintf("snapshot save failed: primary: %v; local: %v", primaryErr, localErr))
	}
}

// RestoreSnapshot loads the newest usable snapshot: primary store
// first, then the local tiers in order. After loading from a local
// tier, the primary store is opportunistically resynced. A nil return
// means no usable snapshot exists anywhere and the caller should
// initialize fresh defaults.
func RestoreSnapshot(ctx context.Context, repository repositories.Repository, store *snapshots.Store) *gametypes.Snapshot {
	if repository != nil {
		snapshot, err := repository.LoadSnapshot(ctx)
		if err == nil {
			verr := snapshot.Validate()
			if verr == nil {
				return snapshot
			}
			logrus.Warnf("Rejecting primary store snapshot: %v", verr)
		} else if !repositories.IsNotFound(err) {
			logrus.Errorf("Failed to load snapshot from primary store: %v", err)
		}
	}

	snapshot, err := store.Load()
	if err != nil {
		logrus.Infof("No usable local snapshot: %v", err)
		return nil
	}

	if repository != nil {
		if err := repository.SaveSnapshot(ctx, snapshot); err != nil {
			logrus.Errorf("Failed to resync primary store from local snapshot: %v", err)
		}
	}

	return snapshot
}
