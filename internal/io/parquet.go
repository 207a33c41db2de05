package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/series"
)

// Read reads Parquet data and returns a DataFrame.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	// Parquet needs random access; buffer the whole stream.
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: int64(r.options.BatchSize),
	}, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	return r.arrowTableToDataFrame(table)
}

// arrowTableToDataFrame converts an Arrow table to a DataFrame.
func (r *ParquetReader) arrowTableToDataFrame(table arrow.Table) (*dataframe.DataFrame, error) {
	seriesList := make([]dataframe.ISeries, 0, table.NumCols())
	schema := table.Schema()

	for i := 0; i < int(table.NumCols()); i++ {
		field := schema.Field(i)
		s, err := r.arrowColumnToSeries(field.Name, table.Column(i), field.Type)
		if err != nil {
			for _, created := range seriesList {
				created.Release()
			}
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		seriesList = append(seriesList, s)
	}

	return dataframe.New(seriesList...), nil
}

// arrowColumnToSeries flattens a chunked column into one array and widens
// 32-bit numbers to the 64-bit types the series package stores.
func (r *ParquetReader) arrowColumnToSeries(
	name string, column *arrow.Column, dataType arrow.DataType,
) (dataframe.ISeries, error) {
	chunks := column.Data().Chunks()

	var arr arrow.Array
	switch len(chunks) {
	case 0:
		b := array.NewBuilder(r.mem, dataType)
		defer b.Release()
		arr = b.NewArray()
	case 1:
		arr = chunks[0]
		arr.Retain()
	default:
		concatenated, err := array.Concatenate(chunks, r.mem)
		if err != nil {
			return nil, fmt.Errorf("concatenating chunks: %w", err)
		}
		arr = concatenated
	}
	defer arr.Release()

	switch typed := arr.(type) {
	case *array.Int32:
		values := make([]int64, typed.Len())
		valid := make([]bool, typed.Len())
		for i := range values {
			values[i], valid[i] = int64(typed.Value(i)), typed.IsValid(i)
		}
		return series.NewNullable(name, values, valid, r.mem)
	case *array.Float32:
		values := make([]float64, typed.Len())
		valid := make([]bool, typed.Len())
		for i := range values {
			values[i], valid[i] = float64(typed.Value(i)), typed.IsValid(i)
		}
		return series.NewNullable(name, values, valid, r.mem)
	default:
		return series.FromArray(name, arr)
	}
}

// Write writes the DataFrame to Parquet format.
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	table := w.dataFrameToArrowTable(df)
	defer table.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(w.options.BatchSize)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	// pqarrow closes a sink that implements io.Closer; the caller owns w.writer.
	writer, err := pqarrow.NewFileWriter(table.Schema(), writeOnly{w.writer}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	chunkSize := int64(df.Len())
	if chunkSize == 0 {
		chunkSize = 1
	}
	if err := writer.WriteTable(table, chunkSize); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing table: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

type writeOnly struct{ io.Writer }

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// dataFrameToArrowTable converts a DataFrame to an Arrow table sharing the
// column buffers.
func (w *ParquetWriter) dataFrameToArrowTable(df *dataframe.DataFrame) arrow.Table {
	names := df.Columns()
	fields := make([]arrow.Field, 0, len(names))
	columns := make([]arrow.Column, 0, len(names))

	for _, name := range names {
		col, _ := df.Column(name)
		arr := col.Array()

		field := arrow.Field{Name: name, Type: arr.DataType(), Nullable: true}
		fields = append(fields, field)

		chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
		arr.Release()
		column := arrow.NewColumn(field, chunked)
		chunked.Release()
		columns = append(columns, *column)
	}

	schema := arrow.NewSchema(fields, nil)
	table := array.NewTable(schema, columns, int64(df.Len()))
	for i := range columns {
		columns[i].Release()
	}
	return table
}
