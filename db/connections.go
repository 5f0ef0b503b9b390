/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/PivotLLM/LedgerMCP/db/internal"
)

// StoreConnection creates or replaces a connection record. On replacement
// the original creation timestamp is preserved.
func (d *DB) StoreConnection(record *ConnectionRecord) error {
	if err := d.checkClosed(); err != nil {
		return err
	}

	if record == nil {
		return NewValidationError("record", "", "record cannot be nil")
	}
	if err := internal.ValidateConnectionID(record.ID); err != nil {
		return NewValidationError("id", record.ID, err.Error())
	}
	if err := internal.ValidateRegion(record.Region); err != nil {
		return NewValidationError("region", record.Region, err.Error())
	}
	if err := internal.ValidateDivision(record.Division); err != nil {
		return NewValidationError("division", record.Division, err.Error())
	}
	if err := internal.ValidateDescription(record.Description); err != nil {
		return NewValidationError("description", record.Description, err.Error())
	}
	if record.AccessToken == "" || record.RefreshToken == "" {
		return NewValidationError("tokens", record.ID, "access and refresh tokens are required")
	}

	now := time.Now()
	stored := *record
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = ConnectionActive
	}

	if err := d.sealTokens(&stored); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("store_connection", fmt.Errorf("connections bucket not found"))
		}

		if existing := bucket.Get([]byte(stored.ID)); existing != nil {
			var prev ConnectionRecord
			if err := json.Unmarshal(existing, &prev); err == nil {
				stored.CreatedAt = prev.CreatedAt
			}
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}

		data, err := json.Marshal(&stored)
		if err != nil {
			return NewDatabaseError("store_connection", fmt.Errorf("failed to marshal record: %w", err))
		}

		if err := bucket.Put([]byte(stored.ID), data); err != nil {
			return NewDatabaseError("store_connection", fmt.Errorf("failed to store record: %w", err))
		}

		return nil
	})

	if err != nil {
		return err
	}

	d.logger.Infof("Stored connection %s (region: %s)", stored.ID, stored.Region)
	return nil
}

// GetConnection retrieves a connection record with decrypted tokens
func (d *DB) GetConnection(id string) (*ConnectionRecord, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	if err := internal.ValidateConnectionID(id); err != nil {
		return nil, NewValidationError("id", id, err.Error())
	}

	var record *ConnectionRecord

	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("get_connection", fmt.Errorf("connections bucket not found"))
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return NewTokenError("connection", id, ErrConnectionNotFound)
		}

		record = &ConnectionRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return NewDatabaseError("get_connection", fmt.Errorf("failed to unmarshal record: %w", err))
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	if err := d.openTokens(record); err != nil {
		return nil, err
	}

	return record, nil
}

// ListConnections returns all connection records with token material
// cleared. Use GetConnection to obtain tokens for a specific connection.
func (d *DB) ListConnections() ([]ConnectionRecord, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	var connections []ConnectionRecord

	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("list_connections", fmt.Errorf("connections bucket not found"))
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record ConnectionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				d.logger.Warningf("Failed to unmarshal connection %s: %v", string(k), err)
				return nil // Continue iteration
			}

			record.AccessToken = ""
			record.RefreshToken = ""
			connections = append(connections, record)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	d.logger.Debugf("Listed %d connections", len(connections))
	return connections, nil
}

// DeleteConnection removes a connection record
func (d *DB) DeleteConnection(id string) error {
	if err := d.checkClosed(); err != nil {
		return err
	}

	if err := internal.ValidateConnectionID(id); err != nil {
		return NewValidationError("id", id, err.Error())
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("delete_connection", fmt.Errorf("connections bucket not found"))
		}

		if bucket.Get([]byte(id)) == nil {
			return NewTokenError("connection", id, ErrConnectionNotFound)
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return NewDatabaseError("delete_connection", fmt.Errorf("failed to delete record: %w", err))
		}

		return nil
	})

	if err != nil {
		return err
	}

	d.logger.Infof("Deleted connection %s", id)
	return nil
}

// UpdateConnectionTokens replaces all three token fields atomically after a
// successful refresh. The old values are never partially retained: upstream
// refresh tokens are single-use, so a mixed pair would strand the
// connection. Also resets the failure state and alert flag.
func (d *DB) UpdateConnectionTokens(id, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := d.checkClosed(); err != nil {
		return err
	}

	if err := internal.ValidateConnectionID(id); err != nil {
		return NewValidationError("id", id, err.Error())
	}
	if accessToken == "" || refreshToken == "" {
		return NewValidationError("tokens", id, "access and refresh tokens are required")
	}

	sealed := ConnectionRecord{AccessToken: accessToken, RefreshToken: refreshToken}
	if err := d.sealTokens(&sealed); err != nil {
		return err
	}

	now := time.Now()

	err := d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("update_connection_tokens", fmt.Errorf("connections bucket not found"))
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return NewTokenError("connection", id, ErrConnectionNotFound)
		}

		var record ConnectionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return NewDatabaseError("update_connection_tokens", fmt.Errorf("failed to unmarshal record: %w", err))
		}

		record.AccessToken = sealed.AccessToken
		record.RefreshToken = sealed.RefreshToken
		record.ExpiresAt = expiresAt
		record.Status = ConnectionActive
		record.RefreshFailures = 0
		record.AlertSent = false
		record.LastRefreshAt = now
		record.UpdatedAt = now

		updated, err := json.Marshal(&record)
		if err != nil {
			return NewDatabaseError("update_connection_tokens", fmt.Errorf("failed to marshal record: %w", err))
		}

		return bucket.Put([]byte(id), updated)
	})

	if err != nil {
		return err
	}

	d.logger.Debugf("Updated tokens for connection %s (expires %s)", id, expiresAt.Format(time.RFC3339))
	return nil
}

// MarkConnectionRefreshFailed records a failed token refresh. The returned
// alertNeeded is true exactly once per failure streak so the caller raises
// a single operator alert; it flips back after the next successful refresh.
func (d *DB) MarkConnectionRefreshFailed(id string) (bool, error) {
	if err := d.checkClosed(); err != nil {
		return false, err
	}

	if err := internal.ValidateConnectionID(id); err != nil {
		return false, NewValidationError("id", id, err.Error())
	}

	var alertNeeded bool

	err := d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(internal.BucketConnections))
		if bucket == nil {
			return NewDatabaseError("mark_refresh_failed", fmt.Errorf("connections bucket not found"))
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return NewTokenError("connection", id, ErrConnectionNotFound)
		}

		var record ConnectionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return NewDatabaseError("mark_refresh_failed", fmt.Errorf("failed to unmarshal record: %w", err))
		}

		record.Status = ConnectionRefreshFailed
		record.RefreshFailures++
		record.UpdatedAt = time.Now()
		if !record.AlertSent {
			record.AlertSent = true
			alertNeeded = true
		}

		updated, err := json.Marshal(&record)
		if err != nil {
			return NewDatabaseError("mark_refresh_failed", fmt.Errorf("failed to marshal record: %w", err))
		}

		return bucket.Put([]byte(id), updated)
	})

	if err != nil {
		return false, err
	}

	d.logger.Warningf("Marked connection %s as refresh_failed (alert: %v)", id, alertNeeded)
	return alertNeeded, nil
}

// TouchConnectionLastUsed updates the last used timestamp for a connection
// (async operation)
func (d *DB) TouchConnectionLastUsed(id string) {
	go func() {
		err := d.db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket([]byte(internal.BucketConnections))
			if bucket == nil {
				return fmt.Errorf("connections bucket not found")
			}

			data := bucket.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("connection not found")
			}

			var record ConnectionRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}

			record.LastUsedAt = time.Now()

			updated, err := json.Marshal(&record)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}

			return bucket.Put([]byte(id), updated)
		})

		if err != nil {
			d.logger.Warningf("Failed to update connection last used timestamp: %v", err)
		}
	}()
}
