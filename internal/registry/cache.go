package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachedRegistry remembers successful verifications in redis. Rejections are
// never cached. Any redis failure falls through to the inner registry.
type CachedRegistry struct {
	inner Registry
	rdb   *redis.Client
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCachedRegistry(inner Registry, rdb *redis.Client, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   logrus.WithField("component", "registry-cache"),
	}
}

func membershipKey(asset, collection common.Address) string {
	return fmt.Sprintf("registry:membership:%s:%s", collection.Hex(), asset.Hex())
}

func collectionKey(collection common.Address) string {
	return fmt.Sprintf("registry:collection:%s", collection.Hex())
}

func (c *CachedRegistry) VerifyMembership(ctx context.Context, asset, collection common.Address) (*RoyaltySchedule, error) {
	key := membershipKey(asset, collection)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached RoyaltySchedule
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	} else if err != redis.Nil {
		c.log.WithError(err).Debug("membership cache read failed")
	}

	result, err := c.inner.VerifyMembership(ctx, asset, collection)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(result); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.WithError(err).Debug("membership cache write failed")
		}
	}
	return result, nil
}

func (c *CachedRegistry) VerifyCollection(ctx context.Context, collection common.Address) error {
	key := collectionKey(collection)
	if err := c.rdb.Get(ctx, key).Err(); err == nil {
		return nil
	} else if err != redis.Nil {
		c.log.WithError(err).Debug("collection cache read failed")
	}

	if err := c.inner.VerifyCollection(ctx, collection); err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, "1", c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("collection cache write failed")
	}
	return nil
}
