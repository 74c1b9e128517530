package backend

import (
	"context"

	"ledger/internal/events"
	"ledger/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the storage, the optional change publisher and a cleanup
// function releasing both.
type Result struct {
	Storage storage.Storage
	// Events is nil when AMQP is not configured.
	Events  *events.Client
	Cleanup CleanupFunc
}

// Factory creates storage backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// WAL specific
	WALDir              string
	WALSegmentThreshold int
	WALMaxSegments      int

	// Memory specific; empty means start without seed files
	MemorySeedDir string

	// Optional change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	WALBackend    BackendType = "wal"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, WALBackend:
		return true
	default:
		return false
	}
}
