package pantry

import "context"

// HistoryKey is the single storage key holding the serialized record collection
const HistoryKey = "food_recognition_history"

// Backend stores the whole serialized collection under one key
type Backend interface {
	// Load returns the stored collection, or nil when nothing has been stored
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored collection
	Save(ctx context.Context, data []byte) error

	// Remove deletes the stored collection
	Remove(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}
