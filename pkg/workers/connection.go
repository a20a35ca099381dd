package workers

import (
	"context"

	"github.com/cbodonnell/memoria/pkg/clients"
	"github.com/cbodonnell/memoria/pkg/queue"
	"github.com/sirupsen/logrus"
)

type ConnectionEventWorker struct {
	clientManager        *clients.ClientManager
	connectionEventQueue queue.Queue
}

type NewConnectionEventWorkerOptions struct {
	ClientManager        *clients.ClientManager
	ConnectionEventQueue queue.Queue
}

// NewConnectionEventWorker creates a new ConnectionEventWorker.
// The worker moves connect/disconnect events from the client manager
// onto a queue for the game loop to process in order with everything
// else.
func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		clientManager:        opts.ClientManager,
		connectionEventQueue: opts.ConnectionEventQueue,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.clientManager.GetClientEventChan():
			if err := w.connectionEventQueue.Enqueue(&event); err != nil {
				logrus.Errorf("Failed to enqueue connection event for client %s: %v", event.ClientID, err)
			}
		}
	}
}
