package rcache

import (
	"bytes"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/iovacache/percpu"
)

func Test_OrderBase2(t *testing.T) {
	cases := []struct {
		n     uint64
		order int
		pow2  uint64
	}{
		{1, 0, 1},
		{2, 1, 2},
		{3, 2, 4},
		{4, 2, 4},
		{5, 3, 8},
		{31, 5, 32},
		{32, 5, 32},
		{33, 6, 64},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.order, orderBase2(tc.n), "orderBase2(%d)", tc.n)
		assert.Equal(t, tc.pow2, roundUpPow2(tc.n), "roundUpPow2(%d)", tc.n)
	}
	assert.Zero(t, orderBase2(0))
	assert.Equal(t, 64, orderBase2(math.MaxUint64))
}

func Test_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 128, cfg.MagSize)
	require.Equal(t, 32, cfg.MaxGlobalMags)
	require.Equal(t, 6, cfg.NumClasses)
	require.NotNil(t, cfg.Runtime)
}

func Test_NewBank_Defaults(t *testing.T) {
	b, _, _ := newTestBank(t, 2, Config{})
	require.Equal(t, DefaultNumClasses, b.NumClasses())
	require.Equal(t, uint64(32), b.MaxSize())
	require.Equal(t, DefaultMagSize, b.Config().MagSize)

	// Two magazines per core per class.
	require.Equal(t, int64(2*2*DefaultNumClasses), b.LiveMagazines())
}

func Test_NewBank_NilConfigUsesSystemRuntime(t *testing.T) {
	b, err := NewBank(newFakeAllocator(), nil)
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, percpu.System().Possible(), b.ncpu)
}

func Test_NewBank_BadConfig(t *testing.T) {
	rt := percpu.NewStatic(1)

	_, err := NewBank(nil, &Config{Runtime: rt})
	require.ErrorIs(t, err, ErrBadConfig)

	for _, cfg := range []Config{
		{MagSize: -1},
		{MaxGlobalMags: -1},
		{NumClasses: 64},
		{NumClasses: -2},
		{MaxMagazines: -1},
	} {
		cfg.Runtime = rt
		_, err := NewBank(newFakeAllocator(), &cfg)
		require.ErrorIs(t, err, ErrBadConfig, "%+v", cfg)
	}
}

func Test_NewBank_MagazineBudget(t *testing.T) {
	rt := percpu.NewStatic(1)

	_, err := NewBank(newFakeAllocator(), &Config{Runtime: rt, NumClasses: 2, MaxMagazines: 3})
	require.ErrorIs(t, err, ErrNoMemory)

	b, err := NewBank(newFakeAllocator(), &Config{Runtime: rt, NumClasses: 2, MaxMagazines: 4})
	require.NoError(t, err)
	b.Close()
	require.Zero(t, b.LiveMagazines())
}

func Test_Bank_Routing(t *testing.T) {
	b, _, _ := newTestBank(t, 1, Config{})

	require.NoError(t, b.Insert(0x40, 4))

	// Size 3 shares class 2 with size 4.
	pfn, ok, err := b.Get(3, math.MaxUint64)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0x40), pfn)

	_, ok, err = b.Get(4, math.MaxUint64)
	require.NoError(t, err)
	require.False(t, ok, "miss is not an error")

	// Other classes are untouched.
	require.NoError(t, b.Insert(0x80, 8))
	_, ok, err = b.Get(16, math.MaxUint64)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Bank_TooLarge(t *testing.T) {
	b, _, _ := newTestBank(t, 1, Config{})

	require.NoError(t, b.Insert(1, 32))

	err := b.Insert(1, 33)
	require.ErrorIs(t, err, ErrTooLarge)

	_, _, err = b.Get(64, math.MaxUint64)
	require.ErrorIs(t, err, ErrTooLarge)

	require.ErrorIs(t, b.Insert(1, 0), ErrBadSize)
	_, _, err = b.Get(0, math.MaxUint64)
	require.ErrorIs(t, err, ErrBadSize)
}

func Test_Bank_NoMagazine(t *testing.T) {
	b, _, _ := newTestBank(t, 1, Config{NumClasses: 1, MagSize: 2, MaxMagazines: 2})

	for pfn := uint64(1); pfn <= 4; pfn++ {
		require.NoError(t, b.Insert(pfn, 1))
	}
	require.ErrorIs(t, b.Insert(5, 1), ErrNoMagazine)
	require.Equal(t, uint64(1), b.Stats()[0].InsertFailures)

	// Nothing was lost from the slot.
	require.Equal(t, 4, b.Stats()[0].Cached)
}

func Test_Bank_FlushDrainsOnlineCores(t *testing.T) {
	b, fa, rt := newTestBank(t, 2, Config{})

	rt.SetCurrent(0)
	require.NoError(t, b.Insert(10, 1))
	rt.SetCurrent(1)
	require.NoError(t, b.Insert(11, 1))

	rt.Remove(1)
	b.Flush()
	require.Equal(t, []uint64{10}, fa.takeRemoved())

	b.DrainCore(1)
	require.Equal(t, []uint64{11}, fa.takeRemoved())

	// Out-of-range ids are ignored.
	b.DrainCore(-1)
	b.DrainCore(2)
	require.Empty(t, fa.takeRemoved())
}

func Test_Bank_Close(t *testing.T) {
	b, fa, _ := newTestBank(t, 2, Config{})
	require.NoError(t, b.Insert(1, 1))

	b.Close()
	b.Close()
	require.Zero(t, b.LiveMagazines())
	require.Empty(t, fa.takeRemoved(), "close drops cached pfns without draining")

	require.ErrorIs(t, b.Insert(2, 1), ErrClosed)
	_, _, err := b.Get(1, math.MaxUint64)
	require.ErrorIs(t, err, ErrClosed)

	b.Flush()
	require.Empty(t, fa.takeRemoved())

	for _, cs := range b.Stats() {
		require.Zero(t, cs.Cached)
	}
}

func Test_Bank_CloseRacingCallers(t *testing.T) {
	for round := range 20 {
		rt := percpu.NewStatic(4)
		b, err := NewBank(newFakeAllocator(), &Config{Runtime: rt, MagSize: 4, MaxGlobalMags: 2})
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		for w := range 4 {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := range 500 {
					pfn := uint64(w*1000 + i + 1)
					if err := b.Insert(pfn, 1); err != nil {
						assert.ErrorIs(t, err, ErrClosed, "round %d", round)
						return
					}
					if _, _, err := b.Get(1, math.MaxUint64); err != nil {
						assert.ErrorIs(t, err, ErrClosed, "round %d", round)
						return
					}
				}
			}(w)
		}

		close(start)
		b.Close()
		wg.Wait()

		require.ErrorIs(t, b.Insert(1, 1), ErrClosed)
		require.Zero(t, b.LiveMagazines(), "round %d", round)
	}
}

// batchAllocator counts batch drains.
type batchAllocator struct {
	*fakeAllocator
	batches int
}

func (b *batchAllocator) FindAndRemoveBatch(pfns []uint64) int {
	b.batches++
	for _, pfn := range pfns {
		b.FindAndRemove(pfn)
	}
	return len(pfns)
}

func Test_Bank_UsesBatchRemover(t *testing.T) {
	ba := &batchAllocator{fakeAllocator: newFakeAllocator()}
	b, err := NewBank(ba, &Config{Runtime: percpu.NewStatic(1), MagSize: 4})
	require.NoError(t, err)
	defer b.Close()

	for pfn := uint64(1); pfn <= 6; pfn++ {
		require.NoError(t, b.Insert(pfn, 1))
	}
	b.DrainCore(0)

	// One batch per non-empty magazine.
	require.Equal(t, 2, ba.batches)
	require.Len(t, ba.takeRemoved(), 6)
}

// strictAllocator knows no pfns at all.
type strictAllocator struct{ *fakeAllocator }

func (strictAllocator) FindAndRemove(uint64) bool { return false }

func Test_Bank_WarnsOnUnknownPFN(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b, err := NewBank(strictAllocator{newFakeAllocator()}, &Config{Runtime: percpu.NewStatic(1), Logger: log})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Insert(5, 1))
	b.DrainCore(0)

	require.Contains(t, buf.String(), "cached pfn unknown to range allocator")
	require.Contains(t, buf.String(), "missing=1")
	require.Equal(t, uint64(1), b.Stats()[0].Drained)
}
