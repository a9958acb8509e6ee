package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("bad size", func(t *testing.T) {
		_, err := New(0, 10, func(int) {})
		require.ErrorIs(t, err, ErrBadSize)
		_, err = New(1, 0, func(int) {})
		require.ErrorIs(t, err, ErrBadSize)
	})

	t.Run("fifo", func(t *testing.T) {
		var handled []int
		p, err := New(1, 16, func(item int) {
			handled = append(handled, item)
		})
		require.NoError(t, err)

		for i := range 10 {
			require.True(t, p.Append(i))
		}

		p.Stop()
		require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, handled)
	})

	t.Run("overflow", func(t *testing.T) {
		started, gate := make(chan struct{}), make(chan struct{})
		var handled []int
		p, err := New(1, 2, func(item int) {
			if item == 1 {
				close(started)
				<-gate
			}

			handled = append(handled, item)
		})
		require.NoError(t, err)

		require.True(t, p.Append(1))
		<-started
		require.True(t, p.Append(2))
		require.True(t, p.Append(3))
		require.False(t, p.Append(4))
		require.Equal(t, 2, p.Len())

		close(gate)
		p.Stop()
		require.Equal(t, []int{1, 2, 3}, handled)
		require.Zero(t, p.Len())
	})

	t.Run("append after stop", func(t *testing.T) {
		p, err := New(2, 2, func(int) {})
		require.NoError(t, err)
		p.Stop()
		p.Stop()
		require.False(t, p.Append(1))
	})

	t.Run("concurrent producers", func(t *testing.T) {
		var sum atomic.Int64
		p, err := New(8, 4096, func(item int) {
			sum.Add(int64(item))
		})
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			rejected atomic.Int64
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 1; i <= 1000; i++ {
					if !p.Append(i) {
						rejected.Add(1)
					}
				}
			}()
		}

		wg.Wait()
		p.Stop()
		require.Zero(t, rejected.Load())
		require.EqualValues(t, 4*500500, sum.Load())
	})
}
