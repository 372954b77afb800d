package chainclient

import (
	"context"
	"testing"
	"time"

	"github.com/coresig/signer/chain"
	"github.com/stretchr/testify/require"
)

type countingFake struct {
	*Fake
	aggCalls   int
	epochCalls int
}

func (f *countingFake) GetAggregatePublicKey(ctx context.Context, cycle uint64) (chain.Point, bool, error) {
	f.aggCalls++
	return f.Fake.GetAggregatePublicKey(ctx, cycle)
}

func (f *countingFake) GetNodeEpoch(ctx context.Context) (chain.EpochId, error) {
	f.epochCalls++
	return f.Fake.GetNodeEpoch(ctx)
}

func TestCachingChainClientDedupsAggregateLookups(t *testing.T) {
	inner := &countingFake{Fake: NewFake()}
	inner.Aggregates[5] = chain.Point{0x02}

	cached, err := NewCachingChainClient(inner, 8, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, ok, err := cached.GetAggregatePublicKey(context.Background(), 5)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, inner.aggCalls)
}

func TestCachingChainClientExpiresAfterTTL(t *testing.T) {
	inner := &countingFake{Fake: NewFake()}
	cached, err := NewCachingChainClient(inner, 8, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = cached.GetNodeEpoch(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, _, err = cached.GetAggregatePublicKey(context.Background(), 1)
	require.NoError(t, err)
	_, err = cached.GetNodeEpoch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, inner.epochCalls)
}
