package chainclient

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coresig/signer/chain"
)

// cachedPoint pairs a cached aggregate-key lookup with its fetch time, so
// CachingChainClient can expire entries instead of trusting a stale "no
// aggregate key yet" answer forever.
type cachedPoint struct {
	point   chain.Point
	ok      bool
	fetched time.Time
}

// CachingChainClient wraps a ChainClient with a small bounded read-through
// cache over two calls the engine repeats often: the per-cycle aggregate
// public key (read by the DKG update pass and cycle-boundary detection)
// and the node epoch (read when a DKG result is turned into a vote
// transaction). Both change at most once per reward
// cycle, so short-TTL caching trades a bounded amount of staleness for
// materially fewer chain RPCs under a busy event loop.
type CachingChainClient struct {
	ChainClient
	ttl   time.Duration
	aggs  *lru.Cache[uint64, cachedPoint]
	epoch *cachedEpoch
}

type cachedEpoch struct {
	value   chain.EpochId
	fetched time.Time
	valid   bool
}

// NewCachingChainClient wraps inner with an LRU of the given size bounding
// how many reward cycles' aggregate-key lookups are cached at once.
func NewCachingChainClient(inner ChainClient, size int, ttl time.Duration) (*CachingChainClient, error) {
	aggs, err := lru.New[uint64, cachedPoint](size)
	if err != nil {
		return nil, err
	}
	return &CachingChainClient{ChainClient: inner, ttl: ttl, aggs: aggs, epoch: &cachedEpoch{}}, nil
}

func (c *CachingChainClient) GetAggregatePublicKey(ctx context.Context, cycle uint64) (chain.Point, bool, error) {
	if v, ok := c.aggs.Get(cycle); ok && time.Since(v.fetched) < c.ttl {
		return v.point, v.ok, nil
	}
	point, ok, err := c.ChainClient.GetAggregatePublicKey(ctx, cycle)
	if err != nil {
		return point, ok, err
	}
	c.aggs.Add(cycle, cachedPoint{point: point, ok: ok, fetched: time.Now()})
	return point, ok, nil
}

func (c *CachingChainClient) GetNodeEpoch(ctx context.Context) (chain.EpochId, error) {
	if c.epoch.valid && time.Since(c.epoch.fetched) < c.ttl {
		return c.epoch.value, nil
	}
	epoch, err := c.ChainClient.GetNodeEpoch(ctx)
	if err != nil {
		return epoch, err
	}
	c.epoch.value = epoch
	c.epoch.fetched = time.Now()
	c.epoch.valid = true
	return epoch, nil
}

var _ ChainClient = (*CachingChainClient)(nil)
