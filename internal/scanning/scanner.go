package scanning

import "context"

// RawResponse is the untrusted body returned by a provider. Its shape depends on
// the provider and is only interpreted by Parse.
type RawResponse []byte

// Recognizer defines the interface for sending a recognition request to a provider
type Recognizer interface {
	// Recognize sends the request and returns the provider's raw response
	Recognize(ctx context.Context, req RecognitionRequest) (RawResponse, error)
	// Name identifies the provider in logs and metrics
	Name() string
	// Close releases the recognizer's resources
	Close() error
}
