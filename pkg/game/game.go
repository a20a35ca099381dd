package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/cbodonnell/memoria/pkg/clients"
	"github.com/cbodonnell/memoria/pkg/clock"
	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/cbodonnell/memoria/pkg/messages"
	"github.com/cbodonnell/memoria/pkg/queue"
	"github.com/cbodonnell/memoria/pkg/state"
	"github.com/cbodonnell/memoria/pkg/users"
	"github.com/cbodonnell/memoria/pkg/workers"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientDirectory is the view of the connection layer the game needs:
// identity bindings plus unicast/broadcast delivery.
type ClientDirectory interface {
	Broadcast(msg *messages.Message)
	SendToClient(clientID uuid.UUID, msg *messages.Message)
	SendToUser(userID string, msg *messages.Message)
	BindUser(clientID uuid.UUID, userID string) (uuid.UUID, bool)
	UserForClient(clientID uuid.UUID) (string, bool)
	BoundUsers() map[string]uuid.UUID
}

// GameManager owns the single shared game state. All state mutation
// happens on the goroutine running Start; the queues are the only way
// in.
type GameManager struct {
	clientDirectory      ClientDirectory
	clientMessageQueue   queue.Queue
	connectionEventQueue queue.Queue
	registry             *users.Registry
	gameState            *types.GameState
	stateManager         state.StateManager
	saveRequestChan      chan<- workers.SaveRequest
	clock                clock.Clock
	boardGenerator       *board.Generator
	gameLoopInterval     time.Duration
	turnDuration         time.Duration

	// Turn scheduling state. Zero time values mean "not armed".
	turnDeadline       time.Time
	advanceAt          time.Time
	lastIntegrityCheck time.Time
	lastSeen           map[string]int64
}

// NewGameManagerOptions contains options for creating a new GameManager.
type NewGameManagerOptions struct {
	ClientDirectory      ClientDirectory
	ClientMessageQueue   queue.Queue
	ConnectionEventQueue queue.Queue
	Registry             *users.Registry
	StateManager         state.StateManager
	SaveRequestChan      chan<- workers.SaveRequest
	Clock                clock.Clock
	BoardGenerator       *board.Generator
	GameLoopInterval     time.Duration
	TurnDuration         time.Duration
	// Snapshot restores a previously persisted state. Nil starts fresh.
	Snapshot *types.Snapshot
}

func NewGameManager(opts NewGameManagerOptions) *GameManager {
	gm := &GameManager{
		clientDirectory:      opts.ClientDirectory,
		clientMessageQueue:   opts.ClientMessageQueue,
		connectionEventQueue: opts.ConnectionEventQueue,
		registry:             opts.Registry,
		stateManager:         opts.StateManager,
		saveRequestChan:      opts.SaveRequestChan,
		clock:                opts.Clock,
		boardGenerator:       opts.BoardGenerator,
		gameLoopInterval:     opts.GameLoopInterval,
		turnDuration:         opts.TurnDuration,
		lastSeen:             make(map[string]int64),
	}
	if gm.turnDuration <= 0 {
		gm.turnDuration = constants.DefaultTurnDuration
	}
	if gm.gameLoopInterval <= 0 {
		gm.gameLoopInterval = 50 * time.Millisecond
	}

	if opts.Snapshot != nil {
		gm.restoreState(opts.Snapshot)
	} else {
		gm.gameState = gm.freshGameState()
	}

	return gm
}

func (gm *GameManager) freshGameState() *types.GameState {
	return &types.GameState{
		Board:             gm.boardGenerator.Generate(),
		Players:           []*types.Player{},
		Status:            types.StatusPlaying,
		PlayerSelections:  make(map[string]*types.SelectionState),
		GlobalTableNumber: 1,
	}
}

// restoreState rebuilds the live state from a persisted snapshot.
// Connections never survive a restart, so every player comes back
// disconnected and no turn is active until someone reconnects.
func (gm *GameManager) restoreState(snapshot *types.Snapshot) {
	gs := &types.GameState{
		Board:              snapshot.Board,
		Players:            snapshot.Players,
		CurrentPlayerIndex: snapshot.CurrentPlayerIndex,
		Status:             types.StatusPlaying,
		RowSelections:      snapshot.RowSelections,
		PlayerSelections:   snapshot.PlayerSelections,
		TableCount:         snapshot.TableCount,
		GlobalTableNumber:  snapshot.GlobalTableNumber,
		LastTableResetDate: snapshot.LastTableResetDate,
	}
	if gs.PlayerSelections == nil {
		gs.PlayerSelections = make(map[string]*types.SelectionState)
	}
	if gs.GlobalTableNumber < 1 {
		gs.GlobalTableNumber = 1
	}
	for _, p := range gs.Players {
		p.IsConnected = false
		p.ConnectionID = uuid.Nil
	}
	if gs.CurrentPlayerIndex < 0 || gs.CurrentPlayerIndex >= len(gs.Players) {
		gs.CurrentPlayerIndex = 0
	}

	gm.gameState = gs
	gm.registry.ApplyScores(snapshot.UserScores)
	for id, pgs := range snapshot.PlayerGameStates {
		gm.lastSeen[id] = pgs.LastSeen
	}
	logrus.Infof("Restored game state: table %d, %d players, %d tiles revealed",
		gs.GlobalTableNumber, len(gs.Players), revealedCount(gs.Board))
}

func revealedCount(b board.Board) int {
	n := 0
	for i := range b {
		if b[i].Revealed {
			n++
		}
	}
	return n
}

// Start runs the game loop until the context is cancelled.
func (gm *GameManager) Start(ctx context.Context) error {
	gm.lastIntegrityCheck = gm.clock.Now()
	gm.requestSave(false)

	ticker := time.NewTicker(gm.gameLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			gm.gameTick(gm.clock.Now())
		}
	}
}

// gameTick runs one iteration of the game loop.
func (gm *GameManager) gameTick(t time.Time) {
	gm.processConnectionEvents(t)
	gm.processClientMessages(t)
	gm.updateTurnState(t)
	gm.maybeIntegritySweep(t)
}

// processConnectionEvents drains the connection event queue. Connects
// only get interesting after login; disconnects release the player.
func (gm *GameManager) processConnectionEvents(t time.Time) {
	pendingEvents, err := gm.connectionEventQueue.ReadAllMessages()
	if err != nil {
		logrus.Errorf("Failed to read connection events: %v", err)
		return
	}
	for _, item := range pendingEvents {
		event, ok := item.(*clients.ClientEvent)
		if !ok {
			logrus.Errorf("Failed to cast connection event of type %T", item)
			continue
		}
		switch event.Type {
		case clients.ClientEventTypeConnect:
			logrus.Debugf("Client %s connected", event.ClientID)
		case clients.ClientEventTypeDisconnect:
			gm.handleConnectionLost(event.ClientID, t)
		default:
			logrus.Errorf("Unhandled connection event type: %d", event.Type)
		}
	}
}

// processClientMessages drains the client message queue and dispatches
// each message to its handler.
func (gm *GameManager) processClientMessages(t time.Time) {
	pendingMessages, err := gm.clientMessageQueue.ReadAllMessages()
	if err != nil {
		logrus.Errorf("Failed to read client messages: %v", err)
		return
	}
	for _, item := range pendingMessages {
		clientMessage, ok := item.(*messages.ClientMessage)
		if !ok {
			logrus.Errorf("Failed to cast client message of type %T", item)
			continue
		}
		gm.dispatchClientMessage(clientMessage, t)
	}
}

// dispatchClientMessage routes one client message. A panicking handler
// must never take the process down with it.
func (gm *GameManager) dispatchClientMessage(cm *messages.ClientMessage, t time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Recovered from panic handling %s message from client %s: %v", cm.Message.Type, cm.ClientID, r)
		}
	}()

	switch cm.Message.Type {
	case messages.MessageTypeLogin:
		gm.handleLogin(cm.ClientID, cm.Message.Payload, t)
	case messages.MessageTypeReconnectUser:
		gm.handleReconnectUser(cm.ClientID, cm.Message.Payload, t)
	case messages.MessageTypeJoinGame:
		gm.handleJoinGame(cm.ClientID, t)
	case messages.MessageTypeSelectTile:
		gm.handleSelectTile(cm.ClientID, cm.Message.Payload, t)
	case messages.MessageTypeSyncGameState:
		gm.handleSyncGameState(cm.ClientID)
	case messages.MessageTypeSyncScore:
		gm.handleSyncScore(cm.ClientID)
	case messages.MessageTypeSaveGameState:
		gm.handleSaveGameState(cm.ClientID, t)
	case messages.MessageTypeLeaveGame:
		gm.handleLeaveGame(cm.ClientID, t)
	case messages.MessageTypeGetPlayers:
		gm.handleGetPlayers(cm.ClientID)
	case messages.MessageTypeUpdatePoints:
		gm.handleUpdatePoints(cm.ClientID, cm.Message.Payload)
	case messages.MessageTypeDirectSetPoints:
		gm.handleDirectSetPoints(cm.ClientID, cm.Message.Payload)
	case messages.MessageTypeToggleBlockUser:
		gm.handleToggleBlockUser(cm.ClientID, cm.Message.Payload, t)
	case messages.MessageTypeUnlockUserScore:
		gm.handleUnlockUserScore(cm.ClientID, cm.Message.Payload, t)
	case messages.MessageTypeUnlockTables:
		gm.handleUnlockTables(cm.ClientID, cm.Message.Payload)
	case messages.MessageTypeAdminResetTables:
		gm.handleAdminResetTables(cm.ClientID, t)
	case messages.MessageTypeResetGame:
		gm.handleResetGame(cm.ClientID, t)
	case messages.MessageTypeRechargePoints:
		gm.handleRechargePoints(cm.ClientID, cm.Message.Payload)
	default:
		logrus.Warnf("Unhandled message type %s from client %s", cm.Message.Type, cm.ClientID)
	}
}

// maybeIntegritySweep periodically re-verifies the board invariants and
// purges stale idle bookkeeping. A corrupted board is regenerated, not
// fatal.
func (gm *GameManager) maybeIntegritySweep(t time.Time) {
	if t.Sub(gm.lastIntegrityCheck) < constants.IntegrityCheckInterval {
		return
	}
	gm.lastIntegrityCheck = t

	if err := gm.gameState.Board.Validate(); err != nil {
		logrus.Errorf("Board integrity violation, regenerating: %v", err)
		gm.gameState.Board = gm.boardGenerator.Generate()
		gm.gameState.RowSelections = [board.Rows]int{}
		for id := range gm.gameState.PlayerSelections {
			gm.gameState.PlayerSelections[id] = &types.SelectionState{}
		}
		gm.broadcastGameState()
		gm.requestSave(true)
	}

	cutoff := t.Add(-constants.IdlePurgeTimeout).UnixMilli()
	for id, seen := range gm.lastSeen {
		if seen < cutoff {
			delete(gm.lastSeen, id)
		}
	}
}

// touch records user activity for the idle bookkeeping.
func (gm *GameManager) touch(userID string, t time.Time) {
	gm.lastSeen[userID] = t.UnixMilli()
}

// requestSave publishes the current snapshot and asks the save worker
// to persist it. Critical saves (reveals, score changes) bypass the
// debounce window.
func (gm *GameManager) requestSave(critical bool) {
	snapshot := gm.buildSnapshot()
	if err := gm.stateManager.Set(snapshot); err != nil {
		logrus.Errorf("Failed to publish snapshot: %v", err)
		return
	}
	if gm.saveRequestChan == nil {
		return
	}
	select {
	case gm.saveRequestChan <- workers.SaveRequest{Critical: critical}:
	default:
		logrus.Warn("Save request channel is full, dropping request")
	}
}

// buildSnapshot captures the persisted view of the current state. The
// result is a deep copy and safe to hand to the save worker.
func (gm *GameManager) buildSnapshot() *types.Snapshot {
	gs := gm.gameState

	players := make([]*types.Player, 0, len(gs.Players))
	for _, p := range gs.Players {
		players = append(players, &types.Player{
			ID:          p.ID,
			Username:    p.Username,
			IsConnected: p.IsConnected,
		})
	}

	selections := make(map[string]*types.SelectionState, len(gs.PlayerSelections))
	for id, sel := range gs.PlayerSelections {
		selCopy := *sel
		selections[id] = &selCopy
	}

	playerGameStates := make(map[string]types.PlayerGameState, len(gm.lastSeen))
	for id, seen := range gm.lastSeen {
		playerGameStates[id] = types.PlayerGameState{LastSeen: seen}
	}

	return &types.Snapshot{
		Board:              gs.Board.Clone(),
		Players:            players,
		CurrentPlayerIndex: gs.CurrentPlayerIndex,
		Status:             gs.Status,
		RowSelections:      gs.RowSelections,
		PlayerSelections:   selections,
		TableCount:         gs.TableCount,
		LastTableResetDate: gs.LastTableResetDate,
		GlobalTableNumber:  gs.GlobalTableNumber,
		UserScores:         gm.registry.ExportScores(),
		PlayerGameStates:   playerGameStates,
		Timestamp:          gm.clock.Now().UnixMilli(),
	}
}

// boardView redacts the board for clients: unrevealed tiles never carry
// their value.
func (gm *GameManager) boardView(b board.Board) []messages.TileView {
	view := make([]messages.TileView, len(b))
	for i := range b {
		view[i] = messages.TileView{
			Revealed:   b[i].Revealed,
			SelectedBy: b[i].SelectedBy,
			SelectedAt: b[i].SelectedAt,
		}
		if b[i].Revealed {
			value := b[i].Value
			view[i].Value = &value
		}
	}
	return view
}

func (gm *GameManager) playerView(p *types.Player) messages.PlayerView {
	view := messages.PlayerView{
		ID:          p.ID,
		Username:    p.Username,
		IsConnected: p.IsConnected,
	}
	if u := gm.registry.Get(p.ID); u != nil {
		view.IsBlocked = u.IsBlocked
		view.IsLockedDueToScore = u.IsLockedDueToScore
	}
	return view
}

// gameStatePayload builds the redacted state broadcast.
func (gm *GameManager) gameStatePayload() *messages.GameStatePayload {
	gs := gm.gameState

	players := make([]messages.PlayerView, 0, len(gs.Players))
	for _, p := range gs.Players {
		players = append(players, gm.playerView(p))
	}

	var current *messages.PlayerView
	if gs.CurrentPlayer != nil {
		view := gm.playerView(gs.CurrentPlayer)
		current = &view
	}

	return &messages.GameStatePayload{
		Board:         gm.boardView(gs.Board),
		CurrentPlayer: current,
		Players:       players,
		Status:        gs.Status,
		TurnStartTime: gs.TurnStartTime,
		RowSelections: gs.RowSelections,
	}
}

func (gm *GameManager) broadcastGameState() {
	msg, err := messages.New(messages.MessageTypeGameState, gm.gameStatePayload())
	if err != nil {
		logrus.Errorf("Failed to build gameState message: %v", err)
		return
	}
	gm.clientDirectory.Broadcast(msg)
}

func (gm *GameManager) sendGameState(clientID uuid.UUID) {
	msg, err := messages.New(messages.MessageTypeGameState, gm.gameStatePayload())
	if err != nil {
		logrus.Errorf("Failed to build gameState message: %v", err)
		return
	}
	gm.clientDirectory.SendToClient(clientID, msg)
}

// adminPlayerViews builds the per-user rows for admin clients.
func (gm *GameManager) adminPlayerViews() []messages.AdminPlayerView {
	views := make([]messages.AdminPlayerView, 0)
	for _, u := range gm.registry.NonAdmins() {
		view := messages.AdminPlayerView{
			ID:                 u.ID,
			Username:           u.Username,
			Score:              u.Score,
			IsBlocked:          u.IsBlocked,
			IsLockedDueToScore: u.IsLockedDueToScore,
			TablesPlayed:       u.TablesPlayed,
		}
		if p := gm.gameState.PlayerByID(u.ID); p != nil {
			view.IsConnected = p.IsConnected
		}
		views = append(views, view)
	}
	return views
}

// broadcastPlayersUpdate refreshes admin dashboards after score or
// block mutations.
func (gm *GameManager) broadcastPlayersUpdate() {
	msg, err := messages.New(messages.MessageTypePlayersUpdate, messages.PlayersListPayload{
		Success: true,
		Players: gm.adminPlayerViews(),
	})
	if err != nil {
		logrus.Errorf("Failed to build playersUpdate message: %v", err)
		return
	}
	for _, u := range gm.registry.All() {
		if u.IsAdmin {
			gm.clientDirectory.SendToUser(u.ID, msg)
		}
	}
}

func (gm *GameManager) sendTo(clientID uuid.UUID, t messages.MessageType, payload interface{}) {
	msg, err := messages.New(t, payload)
	if err != nil {
		logrus.Errorf("Failed to build %s message: %v", t, err)
		return
	}
	gm.clientDirectory.SendToClient(clientID, msg)
}

func (gm *GameManager) sendToUser(userID string, t messages.MessageType, payload interface{}) {
	msg, err := messages.New(t, payload)
	if err != nil {
		logrus.Errorf("Failed to build %s message: %v", t, err)
		return
	}
	gm.clientDirectory.SendToUser(userID, msg)
}

func (gm *GameManager) broadcast(t messages.MessageType, payload interface{}) {
	msg, err := messages.New(t, payload)
	if err != nil {
		logrus.Errorf("Failed to build %s message: %v", t, err)
		return
	}
	gm.clientDirectory.Broadcast(msg)
}

func (gm *GameManager) sendText(clientID uuid.UUID, text string) {
	gm.sendTo(clientID, messages.MessageTypeMessage, messages.TextMessagePayload{Text: text})
}

func unmarshalPayload(payload json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		logrus.Warnf("Discarding message with malformed payload: %v", err)
		return false
	}
	return true
}
