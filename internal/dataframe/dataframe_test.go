package dataframe_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrame(t *testing.T) *dataframe.DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()

	energy, err := series.NewNullable("energy", []float64{0.1, 0.2, 0.1, 0.4}, []bool{true, true, true, false}, mem)
	require.NoError(t, err)
	key := series.New("key", []int64{1, 2, 1, 3}, mem)
	name := series.New("track_name", []string{"a", "b", "a", "d"}, mem)

	return dataframe.New(energy, key, name)
}

func TestDataFrameBasics(t *testing.T) {
	df := newTestFrame(t)
	defer df.Release()

	assert.Equal(t, 4, df.Len())
	assert.Equal(t, 3, df.Width())
	assert.Equal(t, []string{"energy", "key", "track_name"}, df.Columns())
	assert.True(t, df.HasColumn("key"))
	assert.False(t, df.HasColumn("tempo"))

	col, ok := df.Column("key")
	require.True(t, ok)
	assert.Equal(t, "2", col.GetAsString(1))

	assert.Contains(t, df.String(), "DataFrame[4x3]")
	assert.Equal(t, "DataFrame[empty]", dataframe.New().String())
}

func TestSelectAndDrop(t *testing.T) {
	df := newTestFrame(t)
	defer df.Release()

	selected := df.Select("track_name", "energy", "missing", "energy")
	assert.Equal(t, []string{"track_name", "energy"}, selected.Columns())

	dropped := df.Drop("energy")
	assert.Equal(t, []string{"key", "track_name"}, dropped.Columns())
	assert.Equal(t, 4, dropped.Len())
}

func TestTake(t *testing.T) {
	df := newTestFrame(t)
	defer df.Release()

	taken, err := df.Take([]int{3, 0})
	require.NoError(t, err)
	defer taken.Release()

	assert.Equal(t, 2, taken.Len())
	energy, _ := taken.Column("energy")
	assert.True(t, energy.IsNull(0))
	name, _ := taken.Column("track_name")
	assert.Equal(t, "a", name.GetAsString(1))

	_, err = df.Take([]int{10})
	require.Error(t, err)
}

func TestSlice(t *testing.T) {
	df := newTestFrame(t)
	defer df.Release()

	sliced, err := df.Slice(1, 3)
	require.NoError(t, err)
	defer sliced.Release()
	assert.Equal(t, 2, sliced.Len())

	_, err = df.Slice(3, 1)
	require.Error(t, err)
}

func TestRowKeyAndNulls(t *testing.T) {
	df := newTestFrame(t)
	defer df.Release()

	assert.Equal(t, df.RowKey(0), df.RowKey(2))
	assert.NotEqual(t, df.RowKey(0), df.RowKey(1))

	t.Run("separator bytes inside cells", func(t *testing.T) {
		mem := memory.NewGoAllocator()
		a := series.New("a", []string{"x\x1fy", "x", "-;", ""}, mem)
		b := series.New("b", []string{"z", "y\x1fz", "", "-;"}, mem)
		nullable, err := series.NewNullable("c", []string{"", "", "", ""}, []bool{false, false, true, true}, mem)
		require.NoError(t, err)
		cells := dataframe.New(a, b, nullable)
		defer cells.Release()

		keys := make(map[string]int)
		for i := 0; i < cells.Len(); i++ {
			keys[cells.RowKey(i)] = i
		}
		assert.Len(t, keys, cells.Len(), "distinct rows must have distinct keys")
	})

	assert.True(t, df.RowHasNull(3, []string{"energy"}))
	assert.False(t, df.RowHasNull(3, []string{"key", "not_a_column"}))
	assert.False(t, df.RowHasNull(0, df.Columns()))
}
