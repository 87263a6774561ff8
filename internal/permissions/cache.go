package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a redis read-through layer for effective documents. The database
// cache on the assignment row stays the source of truth; a nil *Cache is
// valid and simply misses on every read, so results never depend on redis
// being up.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func effectiveKey(userID int64, scope Scope) string {
	return fmt.Sprintf("perm:eff:%d:%s", userID, scope.Key())
}

func templateKeysKey(templateID int64) string {
	return fmt.Sprintf("perm:tpl:%d:keys", templateID)
}

// GetDocument returns the cached effective document, if any.
func (c *Cache) GetDocument(ctx context.Context, userID int64, scope Scope) (*Document, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, effectiveKey(userID, scope)).Bytes()
	if err != nil {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

// SetDocument caches the effective document. When the document was computed
// with a template, the key is tracked in that template's key set so a
// template update can invalidate every dependent entry.
func (c *Cache) SetDocument(ctx context.Context, userID int64, scope Scope, doc Document, templateID *int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := effectiveKey(userID, scope)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return err
	}
	if templateID != nil {
		pipe := c.client.Pipeline()
		pipe.SAdd(ctx, templateKeysKey(*templateID), key)
		pipe.Expire(ctx, templateKeysKey(*templateID), c.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}
	return nil
}

// Invalidate drops the cached document for one (user, scope).
func (c *Cache) Invalidate(ctx context.Context, userID int64, scope Scope) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, effectiveKey(userID, scope)).Err()
}

// InvalidateTemplate drops every cached document computed with the template.
func (c *Cache) InvalidateTemplate(ctx context.Context, templateID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	setKey := templateKeysKey(templateID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys = append(keys, setKey)
	return c.client.Del(ctx, keys...).Err()
}
