package io

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/series"
)

// Read reads JSON data and returns a DataFrame. Columns are ordered by name
// because JSON objects carry no field order.
func (r *JSONReader) Read() (*dataframe.DataFrame, error) {
	var (
		records []map[string]any
		err     error
	)
	switch r.options.Format {
	case JSONArray:
		records, err = r.readJSONArray()
	case JSONLines:
		records, err = r.readJSONLines()
	default:
		return nil, fmt.Errorf("unsupported JSON format: %d", r.options.Format)
	}
	if err != nil {
		return nil, err
	}
	if r.options.MaxRecords > 0 && len(records) > r.options.MaxRecords {
		records = records[:r.options.MaxRecords]
	}
	return r.recordsToDataFrame(records)
}

func (r *JSONReader) readJSONArray() ([]map[string]any, error) {
	dec := json.NewDecoder(r.reader)
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("unmarshaling JSON array: %w", err)
	}
	return records, nil
}

func (r *JSONReader) readJSONLines() ([]map[string]any, error) {
	scanner := bufio.NewScanner(r.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []map[string]any
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var record map[string]any
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("unmarshaling JSON line %d: %w", lineNum, err)
		}
		records = append(records, record)

		if r.options.MaxRecords > 0 && len(records) >= r.options.MaxRecords {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning JSON lines: %w", err)
	}
	return records, nil
}

func (r *JSONReader) recordsToDataFrame(records []map[string]any) (*dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.New(), nil
	}

	columnSet := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			columnSet[key] = struct{}{}
		}
	}
	names := make([]string, 0, len(columnSet))
	for name := range columnSet {
		names = append(names, name)
	}
	sort.Strings(names)

	seriesList := make([]dataframe.ISeries, 0, len(names))
	for _, name := range names {
		data := make([]any, len(records))
		for i, record := range records {
			data[i] = record[name]
		}
		s, err := r.createSeriesFromData(name, data)
		if err != nil {
			for _, created := range seriesList {
				created.Release()
			}
			return nil, fmt.Errorf("creating series for column %s: %w", name, err)
		}
		seriesList = append(seriesList, s)
	}
	return dataframe.New(seriesList...), nil
}

// createSeriesFromData picks int64 when every number is integral, float64 for
// other numbers, bool for booleans and string for everything else. JSON null
// and absent keys become nulls.
func (r *JSONReader) createSeriesFromData(name string, data []any) (dataframe.ISeries, error) {
	valid := make([]bool, len(data))
	kind := ""
	for i, v := range data {
		if v == nil {
			continue
		}
		valid[i] = true
		kind = mergeKind(kind, jsonKind(v))
	}

	switch kind {
	case typeInt64:
		values := make([]int64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = v.(json.Number).Int64()
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	case typeFloat64:
		values := make([]float64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = v.(json.Number).Float64()
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	case typeBool:
		values := make([]bool, len(data))
		for i, v := range data {
			if valid[i] {
				values[i] = v.(bool)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	default:
		values := make([]string, len(data))
		for i, v := range data {
			if valid[i] {
				values[i] = jsonText(v)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	}
}

func jsonKind(v any) string {
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return typeInt64
		}
		return typeFloat64
	case bool:
		return typeBool
	default:
		return typeString
	}
}

func mergeKind(current, next string) string {
	switch {
	case current == "" || current == next:
		return next
	case (current == typeInt64 && next == typeFloat64) || (current == typeFloat64 && next == typeInt64):
		return typeFloat64
	default:
		return typeString
	}
}

func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Write writes the DataFrame as JSON records. Nulls are written as null.
func (w *JSONWriter) Write(df *dataframe.DataFrame) error {
	records := dataFrameToRecords(df)

	switch w.options.Format {
	case JSONArray:
		enc := json.NewEncoder(w.writer)
		if w.options.Indent {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encoding JSON array: %w", err)
		}
		return nil
	case JSONLines:
		enc := json.NewEncoder(w.writer)
		for i, record := range records {
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("encoding JSON line %d: %w", i+1, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported JSON format: %d", w.options.Format)
	}
}

func dataFrameToRecords(df *dataframe.DataFrame) []map[string]any {
	names := df.Columns()
	records := make([]map[string]any, df.Len())
	for i := range records {
		record := make(map[string]any, len(names))
		for _, name := range names {
			col, _ := df.Column(name)
			record[name] = cellValue(col, i)
		}
		records[i] = record
	}
	return records
}

func cellValue(col dataframe.ISeries, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch s := col.(type) {
	case *series.Series[int64]:
		return s.Value(i)
	case *series.Series[float64]:
		return s.Value(i)
	case *series.Series[bool]:
		return s.Value(i)
	default:
		return col.GetAsString(i)
	}
}
