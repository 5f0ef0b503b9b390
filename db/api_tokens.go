/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/PivotLLM/LedgerMCP/db/internal"
)

// tokenIndex returns the named sub-bucket of the token index
func tokenIndex(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	indexBucket := tx.Bucket([]byte(internal.BucketTokenIndex))
	if indexBucket == nil {
		return nil, fmt.Errorf("index bucket not found")
	}
	sub := indexBucket.Bucket([]byte(name))
	if sub == nil {
		return nil, fmt.Errorf("index bucket %s not found", name)
	}
	return sub, nil
}

// AddAPIToken generates a new API token, stores its metadata, and returns
// the token and its hash. The raw token is only available at creation time.
func (d *DB) AddAPIToken(description string) (string, string, error) {
	if err := d.checkClosed(); err != nil {
		return "", "", err
	}

	if err := internal.ValidateDescription(description); err != nil {
		return "", "", NewValidationError("description", description, err.Error())
	}

	token, err := d.generateSecureToken()
	if err != nil {
		return "", "", err
	}

	hash := d.hashAPIToken(token)
	prefix := d.generatePrefix(token)

	now := time.Now()
	metadata := &APITokenMetadata{
		Hash:        hash,
		CreatedAt:   now,
		LastUsed:    now,
		Description: description,
		Prefix:      prefix,
	}

	err = d.db.Update(func(tx *bbolt.Tx) error {
		tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
		if tokensBucket == nil {
			return NewDatabaseError("add_api_token", fmt.Errorf("tokens bucket not found"))
		}

		if tokensBucket.Get([]byte(hash)) != nil {
			return NewDatabaseError("add_api_token", ErrDuplicateToken)
		}

		data, err := json.Marshal(metadata)
		if err != nil {
			return NewDatabaseError("add_api_token", fmt.Errorf("failed to marshal metadata: %w", err))
		}
		if err := tokensBucket.Put([]byte(hash), data); err != nil {
			return NewDatabaseError("add_api_token", fmt.Errorf("failed to store metadata: %w", err))
		}

		hashIndex, err := tokenIndex(tx, internal.BucketIndexByHash)
		if err != nil {
			return NewDatabaseError("add_api_token", err)
		}
		if err := hashIndex.Put([]byte(hash), []byte(hash)); err != nil {
			return NewDatabaseError("add_api_token", fmt.Errorf("failed to update hash index: %w", err))
		}

		prefixIndex, err := tokenIndex(tx, internal.BucketIndexByPrefix)
		if err != nil {
			return NewDatabaseError("add_api_token", err)
		}
		if err := prefixIndex.Put([]byte(prefix), []byte(hash)); err != nil {
			return NewDatabaseError("add_api_token", fmt.Errorf("failed to update prefix index: %w", err))
		}

		return nil
	})

	if err != nil {
		return "", "", err
	}

	d.logger.Infof("Created API token with hash %s (prefix: %s)", hash[:12], prefix)
	return token, hash, nil
}

// ValidateAPIToken checks a raw token against stored hashes and returns the
// hash on success. The last used timestamp is updated asynchronously.
func (d *DB) ValidateAPIToken(token string) (bool, string, error) {
	if err := d.checkClosed(); err != nil {
		return false, "", err
	}

	if err := internal.ValidateToken(token); err != nil {
		return false, "", NewValidationError("token", token, err.Error())
	}

	hash := d.hashAPIToken(token)
	valid := false

	err := d.db.View(func(tx *bbolt.Tx) error {
		hashIndex, err := tokenIndex(tx, internal.BucketIndexByHash)
		if err != nil {
			return NewDatabaseError("validate_api_token", err)
		}
		if hashIndex.Get([]byte(hash)) == nil {
			return nil
		}

		tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
		if tokensBucket == nil {
			return NewDatabaseError("validate_api_token", fmt.Errorf("tokens bucket not found"))
		}
		if tokensBucket.Get([]byte(hash)) == nil {
			return nil
		}

		valid = true
		return nil
	})

	if err != nil {
		return false, "", err
	}

	if !valid {
		d.logger.Debugf("Invalid API token validation attempt")
		return false, "", nil
	}

	d.updateTokenLastUsed(hash)
	d.logger.Debugf("Valid API token validated: %s", hash[:12])
	return true, hash, nil
}

// updateTokenLastUsed updates the last used timestamp for a token (async
// operation)
func (d *DB) updateTokenLastUsed(hash string) {
	go func() {
		err := d.db.Update(func(tx *bbolt.Tx) error {
			tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
			if tokensBucket == nil {
				return fmt.Errorf("tokens bucket not found")
			}

			data := tokensBucket.Get([]byte(hash))
			if data == nil {
				return fmt.Errorf("token not found")
			}

			var metadata APITokenMetadata
			if err := json.Unmarshal(data, &metadata); err != nil {
				return fmt.Errorf("failed to unmarshal metadata: %w", err)
			}

			metadata.LastUsed = time.Now()

			updated, err := json.Marshal(&metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}

			return tokensBucket.Put([]byte(hash), updated)
		})

		if err != nil {
			d.logger.Warningf("Failed to update token last used timestamp: %v", err)
		}
	}()
}

// DeleteAPIToken removes an API token and its index entries by hash
func (d *DB) DeleteAPIToken(hash string) error {
	if err := d.checkClosed(); err != nil {
		return err
	}

	if err := internal.ValidateHash(hash); err != nil {
		return NewValidationError("hash", hash, err.Error())
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
		if tokensBucket == nil {
			return NewDatabaseError("delete_api_token", fmt.Errorf("tokens bucket not found"))
		}

		data := tokensBucket.Get([]byte(hash))
		if data == nil {
			return NewTokenError("api", hash, ErrTokenNotFound)
		}

		var metadata APITokenMetadata
		if err := json.Unmarshal(data, &metadata); err != nil {
			return NewDatabaseError("delete_api_token", fmt.Errorf("failed to unmarshal metadata: %w", err))
		}

		if err := tokensBucket.Delete([]byte(hash)); err != nil {
			return NewDatabaseError("delete_api_token", fmt.Errorf("failed to delete token: %w", err))
		}

		if hashIndex, err := tokenIndex(tx, internal.BucketIndexByHash); err == nil {
			if err := hashIndex.Delete([]byte(hash)); err != nil {
				d.logger.Warningf("Failed to remove hash index: %v", err)
			}
		}
		if prefixIndex, err := tokenIndex(tx, internal.BucketIndexByPrefix); err == nil {
			if err := prefixIndex.Delete([]byte(metadata.Prefix)); err != nil {
				d.logger.Warningf("Failed to remove prefix index: %v", err)
			}
		}

		return nil
	})

	if err != nil {
		return err
	}

	d.logger.Infof("Deleted API token with hash %s", hash[:12])
	return nil
}

// ListAPITokens returns metadata for all API tokens
func (d *DB) ListAPITokens() ([]APITokenMetadata, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	var tokens []APITokenMetadata

	err := d.db.View(func(tx *bbolt.Tx) error {
		tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
		if tokensBucket == nil {
			return NewDatabaseError("list_api_tokens", fmt.Errorf("tokens bucket not found"))
		}

		return tokensBucket.ForEach(func(k, v []byte) error {
			var metadata APITokenMetadata
			if err := json.Unmarshal(v, &metadata); err != nil {
				d.logger.Warningf("Failed to unmarshal token metadata for key %s: %v", string(k), err)
				return nil // Continue iteration
			}
			tokens = append(tokens, metadata)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// GetAPITokenMetadata retrieves metadata for a specific API token by hash
func (d *DB) GetAPITokenMetadata(hash string) (*APITokenMetadata, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	if err := internal.ValidateHash(hash); err != nil {
		return nil, NewValidationError("hash", hash, err.Error())
	}

	var metadata *APITokenMetadata

	err := d.db.View(func(tx *bbolt.Tx) error {
		tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
		if tokensBucket == nil {
			return NewDatabaseError("get_api_token_metadata", fmt.Errorf("tokens bucket not found"))
		}

		data := tokensBucket.Get([]byte(hash))
		if data == nil {
			return NewTokenError("api", hash, ErrTokenNotFound)
		}

		metadata = &APITokenMetadata{}
		if err := json.Unmarshal(data, metadata); err != nil {
			return NewDatabaseError("get_api_token_metadata", fmt.Errorf("failed to unmarshal metadata: %w", err))
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return metadata, nil
}

// ResolveAPIToken resolves a full hash or a token prefix to the full hash.
// Prefixes may be abbreviated as long as they are unambiguous.
func (d *DB) ResolveAPIToken(identifier string) (string, error) {
	if err := d.checkClosed(); err != nil {
		return "", err
	}

	if identifier == "" {
		return "", NewValidationError("identifier", identifier, "identifier cannot be empty")
	}

	var resolved string

	err := d.db.View(func(tx *bbolt.Tx) error {
		if len(identifier) == internal.HashLength {
			tokensBucket := tx.Bucket([]byte(internal.BucketAPITokens))
			if tokensBucket == nil {
				return NewDatabaseError("resolve_api_token", fmt.Errorf("tokens bucket not found"))
			}
			if tokensBucket.Get([]byte(identifier)) != nil {
				resolved = identifier
				return nil
			}
		}

		prefixIndex, err := tokenIndex(tx, internal.BucketIndexByPrefix)
		if err != nil {
			return NewDatabaseError("resolve_api_token", err)
		}

		if hashBytes := prefixIndex.Get([]byte(identifier)); hashBytes != nil {
			resolved = string(hashBytes)
			return nil
		}

		var matches []string
		cursor := prefixIndex.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if strings.HasPrefix(string(k), identifier) {
				matches = append(matches, string(v))
			}
		}

		switch len(matches) {
		case 0:
			return NewTokenError("api", identifier, ErrTokenNotFound)
		case 1:
			resolved = matches[0]
			return nil
		default:
			return NewValidationError("identifier", identifier,
				fmt.Sprintf("ambiguous identifier matches %d tokens", len(matches)))
		}
	})

	if err != nil {
		return "", err
	}

	d.logger.Debugf("Resolved identifier %s to hash %s", identifier, resolved[:12])
	return resolved, nil
}
