package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"httpbench/internal/runner"
	"httpbench/internal/stats"
)

const bucketRuns = "runs"

// RunRecord is one finished run as persisted to the history store.
type RunRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Config    runner.Config `json:"config"`
	Report    stats.Report  `json:"report"`
}

// Store keeps run history in a bbolt database under the user's home
// directory.
type Store struct {
	db *bbolt.DB
}

func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(home, ".httpbench")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return Open(filepath.Join(dir, "history.db"))
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(rec RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		// Key by timestamp so the cursor walks runs in order.
		key := fmt.Sprintf("%020d_%s", rec.Timestamp.UnixNano(), rec.ID)
		return b.Put([]byte(key), data)
	})
}

// List returns stored runs, most recent first.
func (s *Store) List() []RunRecord {
	var recs []RunRecord

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				recs = append(recs, rec)
			}
		}
		return nil
	})

	return recs
}

// Get looks a run up by its id.
func (s *Store) Get(id string) (*RunRecord, error) {
	var found *RunRecord

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err == nil && rec.ID == id {
				found = &rec
				return nil
			}
		}
		return nil
	})

	if found == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return found, nil
}
