package snapshots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

const (
	currentFile  = "gamestate.json.zst"
	backup1File  = "gamestate.backup1.json.zst"
	backup2File  = "gamestate.backup2.json.zst"
	errorLogFile = "errors.log"
)

// Store keeps local snapshot files in three tiers. Saves rotate
// current -> backup1 -> backup2 before overwriting current, so a crash
// mid-write never destroys the last two known-good snapshots.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %v", err)
	}
	return &Store{dir: dir}, nil
}

// Tiers returns the snapshot file paths in load order.
func (s *Store) Tiers() []string {
	return []string{
		filepath.Join(s.dir, currentFile),
		filepath.Join(s.dir, backup1File),
		filepath.Join(s.dir, backup2File),
	}
}

// Save rotates the backup tiers and writes the snapshot to the current
// file as zstd-compressed JSON.
func (s *Store) Save(snapshot *gametypes.Snapshot) error {
	tiers := s.Tiers()

	// Rotation failures are tolerated; the write of the current tier
	// decides success.
	if err := rotate(tiers[1], tiers[2]); err != nil {
		logrus.Warnf("Failed to rotate snapshot backup1 -> backup2: %v", err)
	}
	if err := rotate(tiers[0], tiers[1]); err != nil {
		logrus.Warnf("Failed to rotate snapshot current -> backup1: %v", err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	compressed, err := compress(data)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %v", err)
	}

	if err := os.WriteFile(tiers[0], compressed, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %v", err)
	}

	return nil
}

// Load returns the first snapshot tier that decodes and validates, or
// an error if none do.
func (s *Store) Load() (*gametypes.Snapshot, error) {
	var lastErr error
	for _, path := range s.Tiers() {
		snapshot, err := loadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logrus.Warnf("Failed to load snapshot tier %s: %v", path, err)
			}
			lastErr = err
			continue
		}
		if err := snapshot.Validate(); err != nil {
			logrus.Warnf("Rejecting snapshot tier %s: %v", path, err)
			lastErr = err
			continue
		}
		return snapshot, nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return nil, fmt.Errorf("no usable snapshot tier: %v", lastErr)
}

// AppendErrorLog records a persistence diagnostic when every other
// write path has failed.
func (s *Store) AppendErrorLog(message string) {
	path := filepath.Join(s.dir, errorLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logrus.Errorf("Failed to open error log: %v", err)
		return
	}
	defer f.Close()
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		logrus.Errorf("Failed to append to error log: %v", err)
	}
}

func rotate(from, to string) error {
	if _, err := os.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Rename(from, to)
}

func loadFile(path string) (*gametypes.Snapshot, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %v", err)
	}

	snapshot := &gametypes.Snapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	return snapshot, nil
}

func compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed snapshot: %v", err)
	}
	return b, nil
}
