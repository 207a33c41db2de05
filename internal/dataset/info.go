package dataset

import (
	"github.com/paveg/trackpop/internal/dataframe"
)

// Info summarizes a loaded table.
type Info struct {
	Rows          int               `json:"n_rows"`
	Columns       []string          `json:"columns"`
	DataTypes     map[string]string `json:"dtypes"`
	MissingValues map[string]int    `json:"missing_values"`
}

// Describe returns the shape, column types and null counts of df.
func Describe(df *dataframe.DataFrame) Info {
	info := Info{
		Rows:          df.Len(),
		Columns:       df.Columns(),
		DataTypes:     make(map[string]string, df.Width()),
		MissingValues: make(map[string]int, df.Width()),
	}
	for _, name := range info.Columns {
		col, _ := df.Column(name)
		info.DataTypes[name] = col.DataType().Name()
		info.MissingValues[name] = col.NullN()
	}
	return info
}
