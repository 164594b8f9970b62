// Package catalog reads and writes the artifact metadata catalog. Two
// backends implement the same narrow interface: the remote D1-style HTTP
// query API, and a local sqlite mirror for offline runs and tests.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Artifact is one catalog row describing a physical object in the bucket.
// (bucket, key) is the durable identity; ArtifactID is derived from it.
type Artifact struct {
	ArtifactID  string
	SourceType  string
	SourceURL   *string
	ContentHash string
	FetchedAt   *string
	Bucket      string
	Key         string
	Ticker      *string
}

// Client is the catalog collaborator. Insert reports whether a row was
// actually created (false when the identity already existed);
// UpgradeSourceType reports whether the conditional update changed the row.
type Client interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Insert(ctx context.Context, a Artifact) (bool, error)
	UpgradeSourceType(ctx context.Context, bucket, key, sourceType string) (bool, error)
	Close() error
}

// ArtifactID derives the deterministic, content-addressed identity of an
// object. It must never change for a given (bucket, key): re-running the
// job relies on it to avoid duplicate logical artifacts.
func ArtifactID(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + ":" + key))
	return hex.EncodeToString(sum[:])
}

// ContentHash prefers the object's etag; when the listing carried none, the
// key itself is hashed as a weak fallback so the column is never empty.
func ContentHash(etag, key string) string {
	if etag != "" {
		return etag
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TickerFromKey infers an uppercased ticker from the first path segment of
// nested keys ("mstr/8k/..." -> "MSTR"). Root-level keys yield nil.
func TickerFromKey(key string) *string {
	i := strings.IndexByte(key, '/')
	if i <= 0 {
		return nil
	}
	t := strings.ToUpper(key[:i])
	return &t
}
