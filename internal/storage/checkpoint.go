package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/multierr"
)

const (
	// BucketName holds one nested bucket of checkpoints per run
	BucketName = "checkpoints"

	// MetaBucket for storing metadata
	MetaBucket = "meta"

	// CountKey for tracking total checkpoints written
	CountKey = "count"

	// LastRunKey names the run saved most recently
	LastRunKey = "last_run"
)

var (
	// ErrNotFound is returned when a run has no checkpoint
	ErrNotFound = errors.New("checkpoint not found")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("store is closed")
)

// Checkpoint records where a training run stopped
type Checkpoint struct {
	Run         string    `json:"run"`
	GlobalStep  int       `json:"global_step"`
	Epoch       int       `json:"epoch"`
	Rates       []float64 `json:"rates"`
	Loss        float64   `json:"loss"`
	WeightsPath string    `json:"weights_path,omitempty"`
	SavedAt     int64     `json:"saved_at"`
}

// CheckpointStore keeps training checkpoints in a BoltDB file
type CheckpointStore struct {
	db       *bbolt.DB
	dbPath   string
	keep     int
	isClosed bool
}

// NewCheckpointStore opens or creates a store at dbPath.
// keep bounds the checkpoints retained per run; 0 keeps all of them.
func NewCheckpointStore(dbPath string, keep int) (*CheckpointStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketName)); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CheckpointStore{
		db:     db,
		dbPath: dbPath,
		keep:   keep,
	}, nil
}

func stepKey(step int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(step))
	return key
}

// Save stores a checkpoint under its run and step, replacing any checkpoint
// at the same step, and prunes the oldest ones beyond the retention limit.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	if s.isClosed {
		return ErrClosed
	}
	if cp.Run == "" {
		return fmt.Errorf("checkpoint has no run name")
	}
	if cp.GlobalStep < 0 {
		return fmt.Errorf("invalid global step: %d", cp.GlobalStep)
	}
	if cp.SavedAt == 0 {
		cp.SavedAt = time.Now().Unix()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(BucketName))
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		run, err := root.CreateBucketIfNotExists([]byte(cp.Run))
		if err != nil {
			return fmt.Errorf("create run bucket: %w", err)
		}

		if err := run.Put(stepKey(cp.GlobalStep), data); err != nil {
			return err
		}

		if s.keep > 0 {
			if err := prune(run, s.keep); err != nil {
				return fmt.Errorf("prune checkpoints: %w", err)
			}
		}

		meta := tx.Bucket([]byte(MetaBucket))
		if meta == nil {
			return fmt.Errorf("meta bucket not found")
		}

		var count uint64
		if v := meta.Get([]byte(CountKey)); v != nil {
			count = binary.BigEndian.Uint64(v)
		}
		countBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(countBytes, count+1)
		if err := meta.Put([]byte(CountKey), countBytes); err != nil {
			return err
		}

		return meta.Put([]byte(LastRunKey), []byte(cp.Run))
	})
}

// prune deletes the oldest checkpoints of a run bucket until keep remain
func prune(run *bbolt.Bucket, keep int) error {
	var keys [][]byte
	c := run.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for i := 0; i < len(keys)-keep; i++ {
		if err := run.Delete(keys[i]); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the checkpoint with the highest step for run
func (s *CheckpointStore) Latest(run string) (*Checkpoint, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var cp *Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName)).Bucket([]byte(run))
		if b == nil {
			return ErrNotFound
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		cp = &Checkpoint{}
		return json.Unmarshal(v, cp)
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// History returns every retained checkpoint of run in step order
func (s *CheckpointStore) History(run string) ([]Checkpoint, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var history []Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName)).Bucket([]byte(run))
		if b == nil {
			return ErrNotFound
		}
		return b.ForEach(func(k, v []byte) error {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
			}
			history = append(history, cp)
			return nil
		})
	})
	return history, err
}

// Runs lists the runs that have checkpoints
func (s *CheckpointStore) Runs() ([]string, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var runs []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).ForEach(func(k, v []byte) error {
			if v == nil {
				runs = append(runs, string(k))
			}
			return nil
		})
	})
	return runs, err
}

// LastRun returns the run saved most recently, or "" if none
func (s *CheckpointStore) LastRun() (string, error) {
	if s.isClosed {
		return "", ErrClosed
	}

	var run string
	err := s.db.View(func(tx *bbolt.Tx) error {
		run = string(tx.Bucket([]byte(MetaBucket)).Get([]byte(LastRunKey)))
		return nil
	})
	return run, err
}

// Delete removes every checkpoint of run
func (s *CheckpointStore) Delete(run string) error {
	if s.isClosed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket([]byte(BucketName)).DeleteBucket([]byte(run))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return ErrNotFound
		}
		return err
	})
}

// Stats returns statistics about the store
type Stats struct {
	TotalSaved uint64
	Runs       int
	DBPath     string
}

// GetStats returns current statistics
func (s *CheckpointStore) GetStats() (Stats, error) {
	runs, err := s.Runs()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Runs: len(runs), DBPath: s.dbPath}
	err = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(MetaBucket)).Get([]byte(CountKey)); v != nil {
			stats.TotalSaved = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return stats, err
}

// Close flushes and closes the database
func (s *CheckpointStore) Close() error {
	if s.isClosed {
		return nil
	}

	s.isClosed = true
	return multierr.Combine(s.db.Sync(), s.db.Close())
}
