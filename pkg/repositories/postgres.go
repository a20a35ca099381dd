package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/jackc/pgx/v5"
)

// The snapshot is stored as a single JSONB document; the whole state is
// written and read atomically.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS game_snapshots (
	id INT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at BIGINT NOT NULL
);
`

const snapshotRowID = 1

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to the database and ensures the
// snapshot table exists. The caller is responsible for calling Close().
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure snapshot table: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snapshot *gametypes.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	q := `
	INSERT INTO game_snapshots (id, data, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET data = $2, updated_at = $3;
	`
	if _, err := r.conn.Exec(ctx, q, snapshotRowID, data, snapshot.Timestamp); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %v", err)
	}

	return nil
}

func (r *PostgresRepository) LoadSnapshot(ctx context.Context) (*gametypes.Snapshot, error) {
	q := `
	SELECT data FROM game_snapshots WHERE id = $1;
	`
	var data []byte
	if err := r.conn.QueryRow(ctx, q, snapshotRowID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan snapshot: %v", err)
	}

	snapshot := &gametypes.Snapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	return snapshot, nil
}
