// Package backend opens the tree store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"opsconsole/internal/amqp"
	"opsconsole/internal/config"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
	"opsconsole/internal/store/memory"
	"opsconsole/internal/store/sqlite"
)

// Type names a store implementation.
type Type string

const (
	SQLite Type = config.BackendSQLite
	Memory Type = config.BackendMemory
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string

	// Memory specific
	DataDir string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", cfg.DataBackend)
	}
	return Config{
		Type:         t,
		SQLiteDBPath: cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		DataDir:      cfg.DataDir,
	}, nil
}

// CleanupFunc releases whatever the backend holds open.
type CleanupFunc func() error

// Result contains the store and its cleanup function
type Result struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	Create(ctx context.Context, cfg Config) (*Result, error)
}

// DialFunc connects to the change bus. Tests swap it out.
type DialFunc func(url, exchange string, logger *slog.Logger) (*amqp.Client, error)

// DefaultFactory implements Factory
type DefaultFactory struct {
	logger *applog.Logger
	dial   DialFunc
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend), dial: amqp.NewClient}
}

// Create implements Factory.Create
func (f *DefaultFactory) Create(ctx context.Context, cfg Config) (*Result, error) {
	switch cfg.Type {
	case SQLite:
		return f.createSQLite(ctx, cfg)
	case Memory:
		return f.createMemory(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSQLite(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.SQLiteDBPath == "" {
		return nil, fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	// The change bus is optional; a single process works without it.
	var client *amqp.Client
	var bus sqlite.Broadcaster
	if cfg.AMQPURL != "" {
		c, err := f.dial(cfg.AMQPURL, cfg.AMQPExchange, f.logger.WithComponent(applog.ComponentAMQP).Slog())
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change fan-out", applog.FieldError, err)
		} else {
			client = c
			bus = c
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange)
		}
	}

	st, err := sqlite.Open(ctx, cfg.SQLiteDBPath, bus, f.logger.WithComponent(applog.ComponentStore).Slog())
	if err != nil {
		if client != nil {
			client.Close()
		}
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", client != nil)

	return &Result{
		Store: st,
		Cleanup: func() error {
			err := st.Close()
			if client != nil {
				err = errors.Join(err, client.Close())
			}
			return err
		},
	}, nil
}

func (f *DefaultFactory) createMemory(cfg Config) (*Result, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	st, err := memory.NewFromFile(dataDir, f.logger.WithComponent(applog.ComponentStore).Slog())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &Result{Store: st, Cleanup: st.Close}, nil
}
