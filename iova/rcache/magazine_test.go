package rcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMagazine(size int) *magazine {
	return &magazine{pfns: make([]uint64, size)}
}

func Test_Magazine_FullEmpty(t *testing.T) {
	var nilMag *magazine
	require.True(t, nilMag.empty())
	require.False(t, nilMag.full())

	m := newTestMagazine(2)
	require.True(t, m.empty())
	require.False(t, m.full())

	m.push(10)
	require.False(t, m.empty())
	require.False(t, m.full())

	m.push(20)
	require.True(t, m.full())
}

func Test_Magazine_PopIsLIFO(t *testing.T) {
	m := newTestMagazine(4)
	m.push(1)
	m.push(2)
	m.push(3)

	for _, want := range []uint64{3, 2, 1} {
		pfn, ok := m.pop(^uint64(0))
		require.True(t, ok)
		require.Equal(t, want, pfn)
	}
	require.True(t, m.empty())
}

func Test_Magazine_PopHonoursBound(t *testing.T) {
	m := newTestMagazine(4)
	m.push(5)
	m.push(100)
	m.push(200)

	// Skips 200 and 100, swaps 200 into the hole left by 5.
	pfn, ok := m.pop(50)
	require.True(t, ok)
	require.Equal(t, uint64(5), pfn)
	require.Equal(t, []uint64{200, 100}, m.contents())

	// Nothing <= 50 left: a failure that is not emptiness.
	_, ok = m.pop(50)
	require.False(t, ok)
	require.False(t, m.empty())
	require.Len(t, m.contents(), 2)

	pfn, ok = m.pop(150)
	require.True(t, ok)
	require.Equal(t, uint64(100), pfn)
}

func Test_Magazine_PopNeverExceedsBound(t *testing.T) {
	m := newTestMagazine(16)
	for i := range 16 {
		m.push(uint64(i * 7))
	}
	for bound := uint64(0); !m.empty(); bound += 5 {
		pfn, ok := m.pop(bound)
		if ok {
			require.LessOrEqual(t, pfn, bound)
		}
	}
}

func Test_Magazine_LogicViolationsPanic(t *testing.T) {
	m := newTestMagazine(1)
	require.Panics(t, func() { m.pop(1) }, "pop from empty")

	m.push(1)
	require.Panics(t, func() { m.push(2) }, "push to full")

	var nilMag *magazine
	require.Panics(t, func() { nilMag.push(1) })
	require.Panics(t, func() { nilMag.pop(1) })
}

func Test_Magazine_Reset(t *testing.T) {
	m := newTestMagazine(3)
	m.push(1)
	m.push(2)
	m.reset()
	require.True(t, m.empty())
	require.Empty(t, m.contents())
}

func Test_MagazinePool_Budget(t *testing.T) {
	p := newMagazinePool(8, 2)

	a := p.get()
	b := p.get()
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.Len(t, a.pfns, 8)
	require.Nil(t, p.get(), "budget of 2 is spent")
	require.Equal(t, int64(2), p.live.Load())

	a.push(42)
	p.put(a)
	require.Equal(t, int64(1), p.live.Load())

	c := p.get()
	require.NotNil(t, c)
	require.True(t, c.empty(), "recycled magazines come back empty")

	p.put(nil)
	require.Equal(t, int64(2), p.live.Load())
}

func Test_MagazinePool_Unlimited(t *testing.T) {
	p := newMagazinePool(4, 0)
	for range 100 {
		require.NotNil(t, p.get())
	}
	require.Equal(t, int64(100), p.live.Load())
}

func Test_MagazinePool_OverReleasePanics(t *testing.T) {
	p := newMagazinePool(4, 0)
	m := p.get()
	p.put(m)
	require.Panics(t, func() { p.put(m) })
}
