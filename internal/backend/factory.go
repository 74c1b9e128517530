package backend

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/events"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
	"ledger/internal/storage/sqlite"
	"ledger/internal/storage/wal"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// Create opens the configured storage and, when an AMQP URL is set, the
// change event client. A broker that cannot be reached is logged and
// skipped; the ledger keeps working without events.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  storage.Storage
		err error
	)
	switch config.Type {
	case MemoryBackend:
		st = f.createMemoryStorage(config)
	case SQLiteBackend:
		st, err = f.createSQLiteStorage(config)
	case WALBackend:
		st, err = f.createWALStorage(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Storage: st}

	if config.AMQPURL != "" {
		client, err := events.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events",
				log.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Events = client
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.Events != nil {
			errs = append(errs, result.Events.Close())
		}
		errs = append(errs, st.Close())
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryStorage(config Config) storage.Storage {
	store := memory.NewFromDir(config.MemorySeedDir)
	f.logger.Info("Initialized memory backend",
		"seed_directory", config.MemorySeedDir,
		"seeded_keys", len(store.Keys()))
	return store
}

func (f *DefaultFactory) createSQLiteStorage(config Config) (storage.Storage, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createWALStorage(config Config) (storage.Storage, error) {
	cfg := wal.DefaultConfig(config.WALDir)
	if config.WALSegmentThreshold > 0 {
		cfg.SegmentThreshold = config.WALSegmentThreshold
	}
	if config.WALMaxSegments > 0 {
		cfg.MaxSegments = config.WALMaxSegments
	}
	store, err := wal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open write-ahead log: %w", err)
	}
	f.logger.Info("Initialized WAL backend",
		"dir", cfg.Dir,
		"segment_threshold", cfg.SegmentThreshold,
		"max_segments", cfg.MaxSegments)
	return store, nil
}
