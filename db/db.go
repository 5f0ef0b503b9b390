/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

// Package db provides persistent storage for API tokens and upstream
// connection records using bbolt. All writes are transactional and OAuth
// token material is encrypted at rest when an encryption key is configured.
package db

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/PivotLLM/LedgerMCP/db/internal"
	"github.com/PivotLLM/LedgerMCP/global"
)

const (
	// DatabaseFileName is the name of the bbolt database file
	DatabaseFileName = "ledgermcp.db"

	// DatabaseFileMode restricts the database file to the owning user
	DatabaseFileMode = 0600

	openTimeout = 5 * time.Second
)

// Database defines the storage operations used by the rest of the application
type Database interface {
	// API token operations
	AddAPIToken(description string) (token string, hash string, err error)
	ValidateAPIToken(token string) (valid bool, hash string, err error)
	DeleteAPIToken(hash string) error
	ListAPITokens() ([]APITokenMetadata, error)
	GetAPITokenMetadata(hash string) (*APITokenMetadata, error)
	ResolveAPIToken(identifier string) (string, error)

	// Connection operations
	StoreConnection(record *ConnectionRecord) error
	GetConnection(id string) (*ConnectionRecord, error)
	ListConnections() ([]ConnectionRecord, error)
	DeleteConnection(id string) error
	UpdateConnectionTokens(id, accessToken, refreshToken string, expiresAt time.Time) error
	MarkConnectionRefreshFailed(id string) (alertNeeded bool, err error)
	TouchConnectionLastUsed(id string)

	// Lifecycle
	Close() error
	Backup(path string) error
}

// DB implements Database on top of bbolt
type DB struct {
	db      *bbolt.DB
	logger  global.Logger
	cipher  *tokenCipher
	dataDir string
	closed  bool
	mu      sync.RWMutex

	// pendingKey carries the hex key from WithEncryptionKey to New so that
	// key parsing errors surface as a return value
	pendingKey string
}

// Option configures a DB
type Option func(*DB)

// WithDataDir sets the directory in which the database file is stored
func WithDataDir(dir string) Option {
	return func(d *DB) {
		d.dataDir = dir
	}
}

// WithLogger sets the logger used by the database
func WithLogger(logger global.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithEncryptionKey enables encryption at rest for OAuth token material.
// The key must be a hex-encoded 32-byte value.
func WithEncryptionKey(hexKey string) Option {
	return func(d *DB) {
		d.pendingKey = hexKey
	}
}

// New creates or opens the database and ensures the schema exists
func New(options ...Option) (Database, error) {
	d := &DB{}

	for _, option := range options {
		option(d)
	}

	if d.logger == nil {
		d.logger = &nilLogger{}
	}

	if d.dataDir == "" {
		d.dataDir = defaultDataDir()
	}

	if d.pendingKey != "" {
		key, err := hex.DecodeString(d.pendingKey)
		if err != nil {
			return nil, fmt.Errorf("%w: key must be hex encoded: %v", ErrInvalidEncryptionKey, err)
		}
		cipher, err := newTokenCipher(key)
		if err != nil {
			return nil, err
		}
		d.cipher = cipher
		d.pendingKey = ""
	}

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return nil, NewDatabaseError("open", fmt.Errorf("failed to create data directory %s: %w", d.dataDir, err))
	}

	dbPath := filepath.Join(d.dataDir, DatabaseFileName)
	boltDB, err := bbolt.Open(dbPath, DatabaseFileMode, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, NewDatabaseError("open", fmt.Errorf("failed to open database %s: %w", dbPath, err))
	}
	d.db = boltDB

	if err := d.initSchema(); err != nil {
		_ = boltDB.Close()
		return nil, err
	}

	d.logger.Infof("Database opened at %s (encryption: %v)", dbPath, d.cipher != nil)
	return d, nil
}

// initSchema creates all required buckets and records the schema version
func (d *DB) initSchema() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range internal.TopLevelBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return NewDatabaseError("init_schema", fmt.Errorf("failed to create bucket %s: %w", name, err))
			}
		}

		indexBucket := tx.Bucket([]byte(internal.BucketTokenIndex))
		for _, name := range internal.TokenIndexBuckets {
			if _, err := indexBucket.CreateBucketIfNotExists([]byte(name)); err != nil {
				return NewDatabaseError("init_schema", fmt.Errorf("failed to create index bucket %s: %w", name, err))
			}
		}

		systemBucket := tx.Bucket([]byte(internal.BucketSystem))
		if systemBucket.Get([]byte(internal.KeySchemaVersion)) == nil {
			if err := systemBucket.Put([]byte(internal.KeySchemaVersion), []byte(internal.CurrentSchemaVersion)); err != nil {
				return NewDatabaseError("init_schema", fmt.Errorf("failed to store schema version: %w", err))
			}
		}

		return nil
	})
}

// checkClosed returns an error if the database has been closed
func (d *DB) checkClosed() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// Close closes the database. Subsequent operations return ErrDatabaseClosed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.db.Close(); err != nil {
		return NewDatabaseError("close", err)
	}

	d.logger.Infof("Database closed")
	return nil
}

// Backup writes a consistent copy of the database to the given path
func (d *DB) Backup(path string) error {
	if err := d.checkClosed(); err != nil {
		return err
	}

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, DatabaseFileMode)
	})
	if err != nil {
		return NewDatabaseError("backup", err)
	}

	d.logger.Infof("Database backed up to %s", path)
	return nil
}

// generateSecureToken creates a cryptographically random token
func (d *DB) generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", NewDatabaseError("generate_token", fmt.Errorf("failed to generate random bytes: %w", err))
	}
	return hex.EncodeToString(bytes), nil
}

// hashAPIToken returns the hex-encoded SHA-256 hash of a token
func (d *DB) hashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generatePrefix returns the identification prefix of a token
func (d *DB) generatePrefix(token string) string {
	if len(token) < internal.PrefixLength {
		return token
	}
	return token[:internal.PrefixLength]
}

// defaultDataDir returns the data directory used when none is configured
func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ledgermcp")
	}
	return "data"
}

// nilLogger discards all log output
type nilLogger struct{}

func (n *nilLogger) Debug(string)            {}
func (n *nilLogger) Debugf(string, ...any)   {}
func (n *nilLogger) Info(string)             {}
func (n *nilLogger) Infof(string, ...any)    {}
func (n *nilLogger) Notice(string)           {}
func (n *nilLogger) Noticef(string, ...any)  {}
func (n *nilLogger) Warning(string)          {}
func (n *nilLogger) Warningf(string, ...any) {}
func (n *nilLogger) Error(string)            {}
func (n *nilLogger) Errorf(string, ...any)   {}
func (n *nilLogger) Fatal(string)            {}
func (n *nilLogger) Fatalf(string, ...any)   {}
func (n *nilLogger) Close()                  {}
