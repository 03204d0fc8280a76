package publisher

import (
	"context"

	"sjsage522/orbscreener/internal/model"
)

// Publisher represents a service fanning stored records out to consumers
type Publisher interface {
	// Publish publishes one stored record
	Publish(ctx context.Context, rec model.StoredRecord) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
