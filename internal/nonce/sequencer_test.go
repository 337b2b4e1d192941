package nonce

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	start uint64
	calls atomic.Int64
	fail  bool
}

func (f *fakeCounter) NonceAt(_ context.Context, _ common.Address, _ *big.Int) (uint64, error) {
	f.calls.Add(1)
	if f.fail {
		return 0, errors.New("rpc down")
	}
	return f.start, nil
}

var addr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestSequencerSeedsOnceFromNetwork(t *testing.T) {
	rpc := &fakeCounter{start: 42}
	seq := NewSequencer(rpc, addr)

	for want := uint64(42); want < 47; want++ {
		got, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(1), rpc.calls.Load(), "network should be consulted exactly once")
}

func TestSequencerFailedSeedRetries(t *testing.T) {
	rpc := &fakeCounter{start: 7, fail: true}
	seq := NewSequencer(rpc, addr)

	_, err := seq.Next(context.Background())
	require.Error(t, err)

	rpc.fail = false
	got, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestSequencerConcurrentCallersGetDistinctGapFreeNonces(t *testing.T) {
	const workers = 64
	rpc := &fakeCounter{start: 100}
	seq := NewSequencer(rpc, addr)

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers, "every caller must receive a distinct nonce")
	for n := uint64(100); n < 100+workers; n++ {
		assert.True(t, seen[n], "nonce %d missing from sequence", n)
	}
}

func TestRegistryReturnsSameSequencerPerAddress(t *testing.T) {
	reg := NewRegistry(&fakeCounter{start: 0})

	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	assert.Same(t, reg.For(a), reg.For(a))
	assert.NotSame(t, reg.For(a), reg.For(b))
}
