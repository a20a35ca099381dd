package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/memoria/pkg/api"
	"github.com/cbodonnell/memoria/pkg/board"
	"github.com/cbodonnell/memoria/pkg/clients"
	"github.com/cbodonnell/memoria/pkg/clock"
	"github.com/cbodonnell/memoria/pkg/game"
	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/network"
	"github.com/cbodonnell/memoria/pkg/queue"
	"github.com/cbodonnell/memoria/pkg/repositories"
	"github.com/cbodonnell/memoria/pkg/snapshots"
	"github.com/cbodonnell/memoria/pkg/state"
	"github.com/cbodonnell/memoria/pkg/users"
	"github.com/cbodonnell/memoria/pkg/workers"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	repositoryType := flag.String("repository-type", "sqlite", "Primary snapshot store: postgres, sqlite or none")
	sqlitePath := flag.String("sqlite-path", "memoria.db", "Path to the sqlite database file")
	dataDir := flag.String("data-dir", "data", "Directory for local snapshot files")
	turnDuration := flag.Duration("turn-duration", constants.DefaultTurnDuration, "Turn countdown duration")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	parsedLogLevel, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Failed to parse log level: %v", err)
	}
	logrus.SetLevel(parsedLogLevel)
	logrus.Infof("Log level set to %s", parsedLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repository repositories.Repository
	switch *repositoryType {
	case "postgres":
		connStr := os.Getenv("DATABASE_URL")
		if connStr == "" {
			logrus.Fatal("DATABASE_URL environment variable must be set for the postgres repository")
		}
		repository, err = repositories.NewPostgresRepository(ctx, connStr)
		if err != nil {
			logrus.Fatalf("Failed to create postgres repository: %v", err)
		}
	case "sqlite":
		repository, err = repositories.NewSQLiteRepository(ctx, *sqlitePath)
		if err != nil {
			logrus.Fatalf("Failed to create sqlite repository: %v", err)
		}
	case "none":
		logrus.Warn("Running without a primary snapshot store")
	default:
		logrus.Fatalf("Unknown repository type %q", *repositoryType)
	}
	if repository != nil {
		defer repository.Close(ctx)
	}

	snapshotStore, err := snapshots.NewStore(*dataDir)
	if err != nil {
		logrus.Fatalf("Failed to create snapshot store: %v", err)
	}

	snapshot := workers.RestoreSnapshot(ctx, repository, snapshotStore)
	if snapshot == nil {
		logrus.Info("No usable snapshot found, starting fresh")
	}

	clientManager := clients.NewClientManager()
	clientMessageQueue := queue.NewInMemoryQueue(10000)
	connectionEventQueue := queue.NewInMemoryQueue(1000)

	connectionEventWorker := workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		ClientManager:        clientManager,
		ConnectionEventQueue: connectionEventQueue,
	})
	go connectionEventWorker.Start(ctx)

	stateManager := state.NewInMemoryStateManager()
	saveRequestChan := make(chan workers.SaveRequest, 100)

	saveSnapshotWorker := workers.NewSaveSnapshotWorker(workers.NewSaveSnapshotWorkerOptions{
		Repository:      repository,
		SnapshotStore:   snapshotStore,
		StateManager:    stateManager,
		SaveRequestChan: saveRequestChan,
		DebounceWindow:  constants.SaveDebounceWindow,
	})
	go saveSnapshotWorker.Start(ctx)

	wsServer := network.NewWSServer(network.NewWSServerOptions{
		ClientManager:      clientManager,
		ClientMessageQueue: clientMessageQueue,
	})

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:               *port,
		WSHandler:          wsServer.Handler(ctx),
		ClientManager:      clientManager,
		ClientMessageQueue: clientMessageQueue,
		StateManager:       stateManager,
	})
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logrus.Fatalf("API server failed: %v", err)
		}
	}()

	gameManager := game.NewGameManager(game.NewGameManagerOptions{
		ClientDirectory:      clientManager,
		ClientMessageQueue:   clientMessageQueue,
		ConnectionEventQueue: connectionEventQueue,
		Registry:             users.NewRegistry(users.DefaultUsers()),
		StateManager:         stateManager,
		SaveRequestChan:      saveRequestChan,
		Clock:                clock.New(),
		BoardGenerator:       board.NewGenerator(time.Now().UnixNano()),
		GameLoopInterval:     50 * time.Millisecond,
		TurnDuration:         *turnDuration,
		Snapshot:             snapshot,
	})

	logrus.Info("Starting game manager")
	if err := gameManager.Start(ctx); err != nil {
		logrus.Fatalf("Game manager failed: %v", err)
	}
}
