package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"firefeed/ingest"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var recordsBucket = []byte("records")

// Store is a bbolt-backed storage collaborator. One record per item id;
// writing the same id again replaces the record.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
	mu     sync.RWMutex
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for bolt store: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Save(_ context.Context, rec ingest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.Item.ID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(rec.Item.ID), raw)
	})
}

// Get returns the stored record for an item id, or false when absent.
func (s *Store) Get(id string) (ingest.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(recordsBucket).Get([]byte(id)); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil {
		return ingest.Record{}, false, err
	}
	if raw == nil {
		return ingest.Record{}, false, nil
	}

	var rec ingest.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ingest.Record{}, false, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return rec, true, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(recordsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ ingest.Storage = (*Store)(nil)
