package dataset

import (
	"github.com/cespare/xxhash/v2"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/validation"
)

// CleanReport counts what Clean removed.
type CleanReport struct {
	NullRowsRemoved   int `json:"null_rows_removed"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	Remaining         int `json:"remaining"`
}

// Clean drops every row with a null in any of columns (all columns when
// columns is empty), then drops rows identical to an earlier row across all
// columns. Row order is preserved and the first occurrence is kept. The
// result is a new table; df is left untouched.
func Clean(df *dataframe.DataFrame, columns []string) (*dataframe.DataFrame, CleanReport, error) {
	if len(columns) == 0 {
		columns = df.Columns()
	}
	if err := validation.ValidateColumns(df, "Clean", columns...); err != nil {
		return nil, CleanReport{}, err
	}

	var report CleanReport
	keep := make([]int, 0, df.Len())
	seen := make(map[uint64][]string)

	for row := 0; row < df.Len(); row++ {
		if df.RowHasNull(row, columns) {
			report.NullRowsRemoved++
			continue
		}

		key := df.RowKey(row)
		h := xxhash.Sum64String(key)
		if containsKey(seen[h], key) {
			report.DuplicatesRemoved++
			continue
		}
		seen[h] = append(seen[h], key)
		keep = append(keep, row)
	}

	cleaned, err := df.Take(keep)
	if err != nil {
		return nil, report, err
	}
	report.Remaining = cleaned.Len()
	return cleaned, report, nil
}

// containsKey resolves hash collisions by exact comparison.
func containsKey(bucket []string, key string) bool {
	for _, k := range bucket {
		if k == key {
			return true
		}
	}
	return false
}
