/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnection(id string) *ConnectionRecord {
	return &ConnectionRecord{
		ID:           id,
		Description:  "test connection",
		Region:       "nl",
		Division:     "123456",
		AccessToken:  "access-token-value",
		RefreshToken: "refresh-token-value",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}
}

func testEncryptionKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return hex.EncodeToString(key)
}

func TestConnectionStoreAndGet(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme-prod")))

	record, err := database.GetConnection("acme-prod")
	require.NoError(t, err)
	assert.Equal(t, "acme-prod", record.ID)
	assert.Equal(t, "nl", record.Region)
	assert.Equal(t, "access-token-value", record.AccessToken)
	assert.Equal(t, "refresh-token-value", record.RefreshToken)
	assert.Equal(t, ConnectionActive, record.Status)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestConnectionStoreValidation(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	tests := []struct {
		name   string
		mutate func(*ConnectionRecord)
	}{
		{"empty ID", func(r *ConnectionRecord) { r.ID = "" }},
		{"invalid ID characters", func(r *ConnectionRecord) { r.ID = "bad id!" }},
		{"invalid region", func(r *ConnectionRecord) { r.Region = "NLX" }},
		{"non-numeric division", func(r *ConnectionRecord) { r.Division = "abc" }},
		{"missing access token", func(r *ConnectionRecord) { r.AccessToken = "" }},
		{"missing refresh token", func(r *ConnectionRecord) { r.RefreshToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testConnection("valid-id")
			tt.mutate(record)
			err := database.StoreConnection(record)
			assert.Error(t, err)

			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestConnectionOverwritePreservesCreatedAt(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme")))
	first, err := database.GetConnection("acme")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	replacement := testConnection("acme")
	replacement.Description = "re-imported"
	require.NoError(t, database.StoreConnection(replacement))

	second, err := database.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "re-imported", second.Description)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
}

func TestConnectionGetNotFound(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	_, err := database.GetConnection("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestConnectionUpdateTokensReplacesAllThree(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme")))

	// Simulate a failure streak so we can verify reset
	alertNeeded, err := database.MarkConnectionRefreshFailed("acme")
	require.NoError(t, err)
	assert.True(t, alertNeeded)

	newExpiry := time.Now().Add(10 * time.Minute)
	require.NoError(t, database.UpdateConnectionTokens("acme", "new-access", "new-refresh", newExpiry))

	record, err := database.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "new-access", record.AccessToken)
	assert.Equal(t, "new-refresh", record.RefreshToken)
	assert.Equal(t, newExpiry.Unix(), record.ExpiresAt.Unix())
	assert.Equal(t, ConnectionActive, record.Status)
	assert.Equal(t, 0, record.RefreshFailures)
	assert.False(t, record.AlertSent)
	assert.False(t, record.LastRefreshAt.IsZero())
}

func TestConnectionUpdateTokensRejectsPartialPair(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme")))

	err := database.UpdateConnectionTokens("acme", "new-access", "", time.Now())
	assert.Error(t, err)

	err = database.UpdateConnectionTokens("acme", "", "new-refresh", time.Now())
	assert.Error(t, err)

	// Original tokens untouched
	record, err := database.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", record.AccessToken)
	assert.Equal(t, "refresh-token-value", record.RefreshToken)
}

func TestConnectionRefreshFailedAlertsOnce(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme")))

	alertNeeded, err := database.MarkConnectionRefreshFailed("acme")
	require.NoError(t, err)
	assert.True(t, alertNeeded, "first failure should request an alert")

	alertNeeded, err = database.MarkConnectionRefreshFailed("acme")
	require.NoError(t, err)
	assert.False(t, alertNeeded, "repeated failures should not alert again")

	record, err := database.GetConnection("acme")
	require.NoError(t, err)
	assert.Equal(t, ConnectionRefreshFailed, record.Status)
	assert.Equal(t, 2, record.RefreshFailures)

	// A successful refresh re-arms the alert
	require.NoError(t, database.UpdateConnectionTokens("acme", "a2", "r2", time.Now().Add(time.Hour)))

	alertNeeded, err = database.MarkConnectionRefreshFailed("acme")
	require.NoError(t, err)
	assert.True(t, alertNeeded)
}

func TestConnectionListRedactsTokens(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("one")))
	require.NoError(t, database.StoreConnection(testConnection("two")))

	connections, err := database.ListConnections()
	require.NoError(t, err)
	assert.Len(t, connections, 2)
	for _, record := range connections {
		assert.Empty(t, record.AccessToken)
		assert.Empty(t, record.RefreshToken)
		assert.NotEmpty(t, record.ID)
	}
}

func TestConnectionDelete(t *testing.T) {
	database, tempDir := setupTestDB(t)
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("acme")))
	require.NoError(t, database.DeleteConnection("acme"))

	_, err := database.GetConnection("acme")
	assert.True(t, IsNotFound(err))

	err = database.DeleteConnection("acme")
	assert.True(t, IsNotFound(err))
}

func TestConnectionEncryptionAtRest(t *testing.T) {
	key := testEncryptionKey(t)
	database, tempDir := setupTestDB(t, WithEncryptionKey(key))
	defer cleanupTestDB(database, tempDir)

	require.NoError(t, database.StoreConnection(testConnection("secure")))

	// Round trip through the API yields plaintext
	record, err := database.GetConnection("secure")
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", record.AccessToken)
	assert.Equal(t, "refresh-token-value", record.RefreshToken)

	// The raw stored value must not contain the plaintext
	d, ok := database.(*DB)
	require.True(t, ok)
	sealed := testConnection("probe")
	require.NoError(t, d.sealTokens(sealed))
	assert.NotEqual(t, "access-token-value", sealed.AccessToken)
	assert.Contains(t, sealed.AccessToken, "enc:v1:")
}

func TestConnectionEncryptionInvalidKey(t *testing.T) {
	_, err := New(WithLogger(newTestLogger()), WithDataDir(t.TempDir()), WithEncryptionKey("not-hex"))
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)

	_, err = New(WithLogger(newTestLogger()), WithDataDir(t.TempDir()), WithEncryptionKey("abcd"))
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)
}
