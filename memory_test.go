package trackpop

import (
	"errors"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseRecorder struct {
	id    int
	order *[]int
}

func (r releaseRecorder) Release() { *r.order = append(*r.order, r.id) }

func TestMemoryManager(t *testing.T) {
	t.Run("track and release multiple resources", func(t *testing.T) {
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		manager := NewMemoryManager(mem)

		s1 := series.New("energy", []float64{0.1, 0.2, 0.3}, mem)
		s2 := series.New("track_name", []string{"a", "b", "c"}, mem)
		df := NewDataFrame(series.New("key", []int64{1, 2, 3}, mem))

		manager.Track(s1)
		manager.Track(s2)
		manager.Track(df)
		manager.Track(nil)
		assert.Equal(t, 3, manager.Count())

		manager.ReleaseAll()
		assert.Equal(t, 0, manager.Count())
		mem.AssertSize(t, 0)
	})

	t.Run("release all is idempotent", func(t *testing.T) {
		manager := NewMemoryManager(nil)
		manager.Track(series.New("tempo", []float64{120}, manager.Allocator()))
		require.NotPanics(t, func() {
			manager.ReleaseAll()
			manager.ReleaseAll()
		})
	})

	t.Run("releases most recent first", func(t *testing.T) {
		var order []int
		manager := NewMemoryManager(nil)
		for i := 0; i < 3; i++ {
			manager.Track(releaseRecorder{id: i, order: &order})
		}
		manager.ReleaseAll()
		assert.Equal(t, []int{2, 1, 0}, order)
	})

	t.Run("concurrent access", func(t *testing.T) {
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		manager := NewMemoryManager(mem)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				manager.Track(series.New("values", []int64{int64(i)}, mem))
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 10, manager.Count())
		manager.ReleaseAll()
		mem.AssertSize(t, 0)
	})
}

func TestWithMemoryManager(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	boom := errors.New("boom")

	err := WithMemoryManager(mem, func(m *MemoryManager) error {
		m.Track(NewDataFrame(series.New("valence", []float64{0.5, 0.6}, m.Allocator())))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	mem.AssertSize(t, 0)
}
