package pantry

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "pantry"

// BoltBackend implements the Backend interface using BoltDB
type BoltBackend struct {
	db *bbolt.DB
}

// NewBoltBackend opens (or creates) the database at path
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Load reads the collection
func (b *BoltBackend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(HistoryKey))
		if v != nil {
			// Values are only valid for the life of the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading boltdb: %w", err)
	}
	return data, nil
}

// Save writes the collection in a single transaction
func (b *BoltBackend) Save(ctx context.Context, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(HistoryKey), data)
	})
}

// Remove deletes the collection
func (b *BoltBackend) Remove(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(HistoryKey))
	})
}

// Close closes the database
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
