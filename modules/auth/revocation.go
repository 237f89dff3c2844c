package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked:"

// HashCredential returns the stable hash under which a credential is revoked.
func HashCredential(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RevocationStore keeps revoked credential hashes in Redis until the
// credential would have expired anyway.
type RevocationStore struct {
	client *redis.Client
	prefix string
}

// NewRevocationStore creates a new RevocationStore.
func NewRevocationStore(client *redis.Client) *RevocationStore {
	return &RevocationStore{
		client: client,
		prefix: revokedKeyPrefix,
	}
}

// IsRevoked reports whether the credential hash has been revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, hash string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+hash).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup error: %w", err)
	}
	return n > 0, nil
}

// Revoke marks the credential hash as revoked for ttl.
func (s *RevocationStore) Revoke(ctx context.Context, hash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+hash, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revocation store error: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
