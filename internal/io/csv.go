package io

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/series"
)

const (
	// Boolean string constants
	trueStr  = "true"
	falseStr = "false"

	typeInt64   = "int64"
	typeFloat64 = "float64"
	typeBool    = "bool"
	typeString  = "string"
)

// Read reads CSV data and returns a DataFrame
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace
	// Ragged rows are padded with nulls below.
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	if len(records) == 0 {
		return dataframe.New(), nil
	}

	var headers []string
	var dataRows [][]string

	if r.options.Header {
		headers = records[0]
		dataRows = records[1:]
	} else {
		numCols := len(records[0])
		headers = make([]string, numCols)
		for i := 0; i < numCols; i++ {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
		dataRows = records
	}

	// Transpose data to work with columns
	numCols := len(headers)
	columns := make([][]string, numCols)
	valid := make([][]bool, numCols)
	for i := 0; i < numCols; i++ {
		columns[i] = make([]string, len(dataRows))
		valid[i] = make([]bool, len(dataRows))
		for j, row := range dataRows {
			if i < len(row) && !r.isNull(row[i]) {
				columns[i][j] = row[i]
				valid[i][j] = true
			}
		}
	}

	seriesList := make([]dataframe.ISeries, 0, numCols)
	for i, header := range headers {
		s, err := createSeriesFromStrings(strings.TrimSpace(header), columns[i], valid[i], r)
		if err != nil {
			for _, created := range seriesList {
				created.Release()
			}
			return nil, fmt.Errorf("creating series for column %s: %w", header, err)
		}
		seriesList = append(seriesList, s)
	}

	return dataframe.New(seriesList...), nil
}

func (r *CSVReader) isNull(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}
	for _, nv := range r.options.NullValues {
		if strings.EqualFold(trimmed, nv) {
			return true
		}
	}
	return false
}

// createSeriesFromStrings creates a series from string data, inferring the
// appropriate type from the non-null cells.
func createSeriesFromStrings(name string, data []string, valid []bool, r *CSVReader) (dataframe.ISeries, error) {
	switch inferDataType(data, valid) {
	case typeBool:
		values := make([]bool, len(data))
		for i, v := range data {
			values[i] = valid[i] && strings.EqualFold(strings.TrimSpace(v), trueStr)
		}
		return series.NewNullable(name, values, valid, r.mem)
	case typeInt64:
		values := make([]int64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	case typeFloat64:
		values := make([]float64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	default:
		return series.NewNullable(name, data, valid, r.mem)
	}
}

// inferDataType determines the most specific type every non-null value fits.
func inferDataType(data []string, valid []bool) string {
	canBeInt := true
	canBeFloat := true
	canBeBool := true
	hasValue := false

	for i, raw := range data {
		if !valid[i] {
			continue
		}
		hasValue = true
		value := strings.TrimSpace(raw)

		if canBeBool {
			lower := strings.ToLower(value)
			if lower != trueStr && lower != falseStr {
				canBeBool = false
			}
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
	}

	switch {
	case !hasValue:
		return typeString
	case canBeBool:
		return typeBool
	case canBeInt:
		return typeInt64
	case canBeFloat:
		return typeFloat64
	default:
		return typeString
	}
}

// Write writes the DataFrame to CSV format. Nulls are written as empty cells.
func (w *CSVWriter) Write(df *dataframe.DataFrame) error {
	csvWriter := csv.NewWriter(w.writer)
	csvWriter.Comma = w.options.Delimiter

	names := df.Columns()
	if w.options.Header {
		if err := csvWriter.Write(names); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	columns := make([]dataframe.ISeries, len(names))
	for j, name := range names {
		columns[j], _ = df.Column(name)
	}

	row := make([]string, len(names))
	for i := 0; i < df.Len(); i++ {
		for j, column := range columns {
			row[j] = column.GetAsString(i)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}
