// Package store persists client health between runs in a bbolt file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"go.etcd.io/bbolt"
)

var (
	stateBucketName  = []byte("ntpsync-state")
	serverBucketName = []byte("ntpsync-servers")
	countersKey      = []byte("counters")
)

type counters struct {
	LastSyncTime int64
	LastOffsetMs int64
	Statistics   ntpsync.Statistics
}

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(stateBucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(serverBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the stored state. Servers are keyed by host:port.
func (s *Store) Save(state ntpsync.State) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		encoded, err := json.Marshal(counters{
			LastSyncTime: state.LastSyncTime,
			LastOffsetMs: state.LastOffsetMs,
			Statistics:   state.Statistics,
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(stateBucketName).Put(countersKey, encoded); err != nil {
			return err
		}

		if err := tx.DeleteBucket(serverBucketName); err != nil {
			return err
		}
		servers, err := tx.CreateBucket(serverBucketName)
		if err != nil {
			return err
		}
		for _, server := range state.Servers {
			encoded, err := json.Marshal(server)
			if err != nil {
				return err
			}
			if err := servers.Put([]byte(server.Address()), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the stored state. The bool is false when nothing was saved.
func (s *Store) Load() (ntpsync.State, bool, error) {
	var state ntpsync.State
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(stateBucketName).Get(countersKey)
		if len(value) == 0 {
			return nil
		}
		found = true

		var c counters
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("corrupt counters: %w", err)
		}
		state.LastSyncTime = c.LastSyncTime
		state.LastOffsetMs = c.LastOffsetMs
		state.Statistics = c.Statistics

		return tx.Bucket(serverBucketName).ForEach(func(key, value []byte) error {
			var server ntpsync.Server
			if err := json.Unmarshal(value, &server); err != nil {
				return fmt.Errorf("corrupt server %s: %w", key, err)
			}
			state.Servers = append(state.Servers, server)
			return nil
		})
	})
	if err != nil {
		return ntpsync.State{}, false, err
	}
	return state, found, nil
}

// LoadFile opens path just long enough to read it, so other processes can
// share the file.
func LoadFile(path string) (ntpsync.State, bool, error) {
	s, err := Open(path)
	if err != nil {
		return ntpsync.State{}, false, err
	}
	defer s.Close()
	return s.Load()
}

// SaveFile opens path just long enough to write state.
func SaveFile(path string, state ntpsync.State) error {
	s, err := Open(path)
	if err != nil {
		return err
	}
	if err := s.Save(state); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

func (s *Store) Close() error {
	return s.db.Close()
}
