/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements the global.Logger interface for testing
type testLogger struct {
	logs []string
	mu   sync.Mutex
}

func newTestLogger() *testLogger {
	return &testLogger{logs: make([]string, 0)}
}

func (l *testLogger) addLog(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *testLogger) Debug(msg string)                { l.addLog("DEBUG: " + msg) }
func (l *testLogger) Info(msg string)                 { l.addLog("INFO: " + msg) }
func (l *testLogger) Notice(msg string)               { l.addLog("NOTICE: " + msg) }
func (l *testLogger) Warning(msg string)              { l.addLog("WARNING: " + msg) }
func (l *testLogger) Error(msg string)                { l.addLog("ERROR: " + msg) }
func (l *testLogger) Fatal(msg string)                { l.addLog("FATAL: " + msg) }
func (l *testLogger) Debugf(format string, v ...any)  { l.addLog(fmt.Sprintf("DEBUG: "+format, v...)) }
func (l *testLogger) Infof(format string, v ...any)   { l.addLog(fmt.Sprintf("INFO: "+format, v...)) }
func (l *testLogger) Noticef(format string, v ...any) { l.addLog(fmt.Sprintf("NOTICE: "+format, v...)) }
func (l *testLogger) Warningf(format string, v ...any) {
	l.addLog(fmt.Sprintf("WARNING: "+format, v...))
}
func (l *testLogger) Errorf(format string, v ...any) { l.addLog(fmt.Sprintf("ERROR: "+format, v...)) }
func (l *testLogger) Fatalf(format string, v ...any) { l.addLog(fmt.Sprintf("FATAL: "+format, v...)) }
func (l *testLogger) Close()                         {}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T, options ...Option) (Database, string) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ledgermcp_test_")
	require.NoError(t, err, "Failed to create temp directory")

	options = append([]Option{WithLogger(newTestLogger()), WithDataDir(tempDir)}, options...)
	database, err := New(options...)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		require.NoError(t, err, "Failed to create test database")
	}

	return database, tempDir
}

// cleanupTestDB removes the temporary database
func cleanupTestDB(database Database, tempDir string) {
	if database != nil {
		_ = database.Close()
	}
	_ = os.RemoveAll(tempDir)
}

func TestAPITokenAddVariousDescriptions(t *testing.T) {
	tests := []struct {
		name        string
		description string
		wantError   bool
	}{
		{"Valid description", "Test API token", false},
		{"Empty description", "", false},
		{"Long description", strings.Repeat("a", 500), true},
		{"Unicode description", "测试令牌 🔐", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, tempDir := setupTestDB(t)
			defer cleanupTestDB(database, tempDir)

			token, hash, err := database.AddAPIToken(tt.description)
			if tt.wantError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Len(t, token, 64)
			assert.Len(t, hash, 64)
			assert.NotEqual(t, token, hash)
		})
	}
}

func TestAPITokenValidateLifecycle(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	token, hash, err := database.AddAPIToken("lifecycle test")
	require.NoError(t, err)

	valid, gotHash, err := database.ValidateAPIToken(token)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, hash, gotHash)

	// A well-formed but unknown token is invalid, not an error
	valid, _, err = database.ValidateAPIToken(strings.Repeat("f", 64))
	require.NoError(t, err)
	assert.False(t, valid)

	// Malformed tokens are rejected outright
	_, _, err = database.ValidateAPIToken("short")
	assert.Error(t, err)

	require.NoError(t, database.DeleteAPIToken(hash))

	valid, _, err = database.ValidateAPIToken(token)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestAPITokenResolve(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	token, hash, err := database.AddAPIToken("resolve test")
	require.NoError(t, err)

	// Full hash resolves to itself
	resolved, err := database.ResolveAPIToken(hash)
	require.NoError(t, err)
	assert.Equal(t, hash, resolved)

	// Token prefix resolves to the hash
	resolved, err = database.ResolveAPIToken(token[:8])
	require.NoError(t, err)
	assert.Equal(t, hash, resolved)

	// Unknown identifier
	_, err = database.ResolveAPIToken("zzzzzzzz")
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestAPITokenList(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	for i := 0; i < 3; i++ {
		_, _, err := database.AddAPIToken(fmt.Sprintf("token %d", i))
		require.NoError(t, err)
	}

	tokens, err := database.ListAPITokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 3)
	for _, meta := range tokens {
		assert.Len(t, meta.Hash, 64)
		assert.Len(t, meta.Prefix, 8)
	}
}

func TestDatabaseClosedOperations(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer func() { _ = os.RemoveAll(tempDir) }()

	require.NoError(t, database.Close())

	_, _, err := database.AddAPIToken("after close")
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	_, err = database.GetConnection("anything")
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	// Close is idempotent
	assert.NoError(t, database.Close())
}

func TestDatabasePersistsAcrossReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "ledgermcp_test_")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(tempDir) }()

	database, err := New(WithLogger(newTestLogger()), WithDataDir(tempDir))
	require.NoError(t, err)

	token, hash, err := database.AddAPIToken("persistent")
	require.NoError(t, err)
	require.NoError(t, database.Close())

	database, err = New(WithLogger(newTestLogger()), WithDataDir(tempDir))
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	valid, gotHash, err := database.ValidateAPIToken(token)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, hash, gotHash)
}

func TestDatabaseBackupProducesOpenableCopy(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	token, hash, err := database.AddAPIToken("backup me")
	require.NoError(t, err)

	backupDir := t.TempDir()
	require.NoError(t, database.Backup(filepath.Join(backupDir, DatabaseFileName)))

	restored, err := New(WithLogger(newTestLogger()), WithDataDir(backupDir))
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	valid, gotHash, err := restored.ValidateAPIToken(token)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, hash, gotHash)

	require.NoError(t, database.Close())
	assert.ErrorIs(t, database.Backup(filepath.Join(backupDir, "late.db")), ErrDatabaseClosed)
}
