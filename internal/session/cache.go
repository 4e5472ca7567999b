package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/models"
)

const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultCacheCapacity = 1024

	cacheShards             = 4
	cacheEvictionPercentage = 10

	identifyPurpose = "identify"
)

// Returned from fetch function so the 401 outcome is never stored
var errNeedsRefresh = errors.New("needs refresh")

type identifyFunc func(ctx context.Context, access string) (identity.Identity, error)

// identityCache memoizes successful identify results per access token value.
// Concurrent lookups for the same token share one in-flight call.
type identityCache struct {
	client *sturdyc.Client[models.User]
}

func newIdentityCache(capacity int, ttl time.Duration) *identityCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &identityCache{
		client: sturdyc.New[models.User](capacity, cacheShards, ttl, cacheEvictionPercentage),
	}
}

func (c *identityCache) identify(ctx context.Context, access string, fetch identifyFunc) (identity.Identity, error) {
	user, err := c.client.GetOrFetch(ctx, cacheKey(identifyPurpose, access), func(ctx context.Context) (models.User, error) {
		id, err := fetch(ctx, access)
		if err != nil {
			return models.User{}, err
		}
		if id.NeedsRefresh {
			return models.User{}, errNeedsRefresh
		}
		return id.User, nil
	})

	switch {
	case errors.Is(err, errNeedsRefresh):
		return identity.Identity{NeedsRefresh: true}, nil
	case err != nil:
		return identity.Identity{}, err
	}

	return identity.Identity{User: user}, nil
}

func (c *identityCache) cached(access string) (models.User, bool) {
	return c.client.Get(cacheKey(identifyPurpose, access))
}

func (c *identityCache) invalidate(access string) {
	c.client.Delete(cacheKey(identifyPurpose, access))
}

// Raw tokens never become keys
func cacheKey(purpose string, token string) string {
	sum := sha256.Sum256([]byte(token))
	return purpose + "::" + hex.EncodeToString(sum[:])
}
