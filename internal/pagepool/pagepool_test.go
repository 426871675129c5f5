package pagepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCeiling(t *testing.T) {
	p := New(1000, 50)
	require.Equal(t, int64(500), p.Ceiling())
	p.SetMaxPoolPercent(10)
	require.Equal(t, int64(100), p.Ceiling())
}

func TestGetRespectsCeiling(t *testing.T) {
	p := New(2, 50) // ceiling = ceil(50*2/100) = 1
	require.Equal(t, int64(1), p.Ceiling())

	buf, err := p.Get()
	require.NoError(t, err)
	require.Len(t, buf, PageSize)
	require.Equal(t, int64(1), p.Live())

	_, err = p.Get()
	require.ErrorIs(t, err, ErrPoolLimitExceeded)
	require.Equal(t, uint64(1), p.LimitHits())

	p.Put(buf)
	require.Equal(t, int64(0), p.Live())

	buf2, err := p.Get()
	require.NoError(t, err)
	p.Put(buf2)
}

func TestGetReturnsZeroedPage(t *testing.T) {
	p := New(100, 50)
	buf, err := p.Get()
	require.NoError(t, err)
	for i := range buf[:16] {
		buf[i] = 0xff
	}
	p.Put(buf)

	buf2, err := p.Get()
	require.NoError(t, err)
	for _, b := range buf2 {
		require.Zero(t, b)
	}
}
