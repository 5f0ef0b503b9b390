/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package internal

// Bucket names used in the bbolt database
const (
	// BucketAPITokens stores API token metadata keyed by token hash
	BucketAPITokens = "api_tokens"

	// BucketConnections stores upstream connection records keyed by connection ID
	BucketConnections = "connections"

	// BucketTokenIndex contains sub-buckets for fast token lookups
	BucketTokenIndex = "token_index"

	// BucketSystem stores database metadata such as the schema version
	BucketSystem = "system"
)

// Sub-bucket names within BucketTokenIndex
const (
	// BucketIndexByHash maps token hash -> token hash for O(1) validation
	BucketIndexByHash = "by_hash"

	// BucketIndexByPrefix maps token prefix -> token hash for identification
	BucketIndexByPrefix = "by_prefix"
)

// System bucket keys
const (
	// KeySchemaVersion holds the current schema version
	KeySchemaVersion = "schema_version"

	// CurrentSchemaVersion is the schema version written by this build
	CurrentSchemaVersion = "1"
)

// TopLevelBuckets lists all buckets that must exist at the root of the database
var TopLevelBuckets = []string{
	BucketAPITokens,
	BucketConnections,
	BucketTokenIndex,
	BucketSystem,
}

// TokenIndexBuckets lists the sub-buckets created inside BucketTokenIndex
var TokenIndexBuckets = []string{
	BucketIndexByHash,
	BucketIndexByPrefix,
}
