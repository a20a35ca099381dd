package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cbodonnell/memoria/pkg/clients"
	"github.com/cbodonnell/memoria/pkg/queue"
	"github.com/cbodonnell/memoria/pkg/state"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// APIServer serves the websocket endpoint plus a small operational
// surface for health checks and monitoring.
type APIServer struct {
	port               int
	wsHandler          http.HandlerFunc
	clientManager      *clients.ClientManager
	clientMessageQueue queue.Queue
	stateManager       state.StateManager
	startedAt          time.Time
}

type NewAPIServerOptions struct {
	Port               int
	WSHandler          http.HandlerFunc
	ClientManager      *clients.ClientManager
	ClientMessageQueue queue.Queue
	StateManager       state.StateManager
}

func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		port:               opts.Port,
		wsHandler:          opts.WSHandler,
		clientManager:      opts.ClientManager,
		clientMessageQueue: opts.ClientMessageQueue,
		stateManager:       opts.StateManager,
	}
}

// Start runs the http server until the context is cancelled.
func (s *APIServer) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.wsHandler)
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("Failed to shut down http server: %v", err)
		}
	}()

	logrus.Infof("API server listening on port %d", s.port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %v", err)
	}
	return nil
}

func (s *APIServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type statusResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
	ConnectedClients int    `json:"connectedClients"`
	QueuedMessages   int    `json:"queuedMessages"`
	TableNumber      int    `json:"tableNumber"`
	Players          int    `json:"players"`
}

func (s *APIServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		ConnectedClients: len(s.clientManager.GetClients()),
		QueuedMessages:   s.clientMessageQueue.Size(),
	}
	if snapshot, err := s.stateManager.Get(); err == nil {
		resp.TableNumber = snapshot.GlobalTableNumber
		resp.Players = len(snapshot.Players)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.Errorf("Failed to encode status response: %v", err)
	}
}
