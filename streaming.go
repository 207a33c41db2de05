package trackpop

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/paveg/trackpop/internal/parallel"
)

// DefaultChunkSize is the number of rows per chunk when none is given.
const DefaultChunkSize = 1000

// ChunkReader yields a table in row chunks. ReadChunk returns io.EOF when
// no rows remain. Callers release each chunk.
type ChunkReader interface {
	ReadChunk() (*DataFrame, error)
	HasNext() bool
	Close() error
}

// SliceChunkReader reads consecutive row ranges of a DataFrame.
type SliceChunkReader struct {
	df        *DataFrame
	chunkSize int

	mu     sync.Mutex
	offset int
	closed bool
}

// NewSliceChunkReader creates a reader over df. chunkSize <= 0 uses
// DefaultChunkSize.
func NewSliceChunkReader(df *DataFrame, chunkSize int) *SliceChunkReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SliceChunkReader{df: df, chunkSize: chunkSize}
}

// ReadChunk copies the next chunk.
func (r *SliceChunkReader) ReadChunk() (*DataFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("chunk reader is closed")
	}
	if r.offset >= r.df.Len() {
		return nil, io.EOF
	}
	end := min(r.offset+r.chunkSize, r.df.Len())
	chunk, err := r.df.Slice(r.offset, end)
	if err != nil {
		return nil, err
	}
	r.offset = end
	return chunk, nil
}

// HasNext reports whether rows remain.
func (r *SliceChunkReader) HasNext() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.offset < r.df.Len()
}

// Close stops the reader. The underlying DataFrame is not released.
func (r *SliceChunkReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// PredictStream scores reader chunk by chunk with kind's pipeline and passes
// each chunk and its predictions to emit. Chunks are released after emit
// returns, and reader is closed on return.
func (p *Predictor) PredictStream(reader ChunkReader, kind string, emit func(chunk *DataFrame, preds []float64) error) error {
	defer reader.Close()

	for index := 0; reader.HasNext(); index++ {
		chunk, err := reader.ReadChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read chunk %d: %w", index, err)
		}

		preds, err := p.Predict(chunk, kind)
		if err == nil {
			err = emit(chunk, preds)
		}
		chunk.Release()
		if err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}
	}
	return nil
}

// PredictChunked splits features into chunks of chunkSize rows and scores
// them concurrently on the configured number of workers. Predictions come
// back in row order.
func (p *Predictor) PredictChunked(features *DataFrame, kind string, chunkSize int) ([]float64, error) {
	if _, err := p.pipeline("PredictChunked", kind); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var out []float64
	err := WithMemoryManager(p.mem, func(mm *MemoryManager) error {
		var chunks []*DataFrame
		reader := NewSliceChunkReader(features, chunkSize)
		defer reader.Close()
		for reader.HasNext() {
			chunk, err := reader.ReadChunk()
			if err != nil {
				return err
			}
			mm.Track(chunk)
			chunks = append(chunks, chunk)
		}

		pool := parallel.NewWorkerPool(p.cfg.Parallel.Workers)
		defer pool.Close()
		results, err := parallel.TryProcessIndexed(pool, chunks, func(_ int, chunk *DataFrame) ([]float64, error) {
			return p.Predict(chunk, kind)
		})
		if err != nil {
			return err
		}

		out = make([]float64, 0, features.Len())
		for _, r := range results {
			out = append(out, r...)
		}
		return nil
	})
	return out, err
}
