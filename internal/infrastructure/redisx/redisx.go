package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Webhook callback dedup: dedup:{key} -> 1
	keyDedup = "dedup:"
	// Order status cache for GET /orders/{id}: order_status:{order_id}
	keyOrderStatus = "order_status:"
)

var (
	TTLStatusCache = 5 * time.Minute
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// DedupStore backs the webhook replay guard with SETNX + TTL.
type DedupStore struct {
	rdb *redis.Client
}

func NewDedupStore(rdb *redis.Client) *DedupStore {
	return &DedupStore{rdb: rdb}
}

func (s *DedupStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, keyDedup+key, 1, ttl).Result()
}

// StatusCache keeps order status snapshots so client-side polling after a
// payment timeout does not hit the order store on every request. The store
// stays the source of truth.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

type StatusSnapshot struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (*StatusSnapshot, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, keyOrderStatus+orderID).Bytes()
	if err != nil {
		return nil, false
	}
	var snap StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (c *StatusCache) Set(ctx context.Context, snap StatusSnapshot) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, keyOrderStatus+snap.OrderID, raw, TTLStatusCache).Err()
}

// Invalidate drops the snapshot after a status change so late-confirmation
// updates are visible immediately.
func (c *StatusCache) Invalidate(ctx context.Context, orderID string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, keyOrderStatus+orderID).Err()
}
