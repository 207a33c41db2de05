// Package artifact persists fitted pipelines: the preprocessing transform,
// the trained estimator and metadata describing how they were produced.
//
// An artifact file starts with the magic bytes "TPOP1" followed by a
// zstd-compressed gob stream of a Bundle.
package artifact

import (
	"bytes"
	"encoding/gob"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/model"
	"github.com/paveg/trackpop/internal/preprocess"
	"github.com/paveg/trackpop/internal/version"
)

// Magic identifies artifact files.
const Magic = "TPOP1"

// Extension is the file extension DefaultPath uses.
const Extension = ".tpop"

// Metadata describes a bundle.
type Metadata struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Version      string
	FeatureNames []string
	Metrics      model.Metrics
	Schema       config.FeatureSchema
}

// Bundle is one fitted pipeline.
type Bundle struct {
	Kind      model.Kind
	Transform *preprocess.FittedTransform
	Estimator model.Estimator
	Metadata  Metadata
}

// New assembles a bundle with a fresh ID and the current time.
func New(schema config.FeatureSchema, transform *preprocess.FittedTransform, est model.Estimator, metrics model.Metrics) *Bundle {
	return &Bundle{
		Kind:      est.Kind(),
		Transform: transform,
		Estimator: est,
		Metadata: Metadata{
			ID:           uuid.New(),
			CreatedAt:    time.Now().UTC(),
			Version:      version.Version,
			FeatureNames: transform.FeatureNames(),
			Metrics:      metrics.Clone(),
			Schema:       schema,
		},
	}
}

func (b *Bundle) validate() error {
	switch {
	case b == nil:
		return stderrors.New("bundle is nil")
	case b.Transform == nil:
		return stderrors.New("bundle has no transform")
	case b.Estimator == nil:
		return stderrors.New("bundle has no estimator")
	case !b.Estimator.Fitted():
		return stderrors.New("bundle estimator is not fitted")
	case b.Estimator.Kind() != b.Kind:
		return fmt.Errorf("bundle kind %q does not match estimator kind %q", b.Kind, b.Estimator.Kind())
	}
	return nil
}

// Write encodes b to w.
func Write(w io.Writer, b *Bundle) error {
	const op = "artifact.Write"
	if err := b.validate(); err != nil {
		return errors.NewInvalidInputError(op, err.Error())
	}

	if _, err := io.WriteString(w, Magic); err != nil {
		return fmt.Errorf("writing artifact header: %w", err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(b); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing artifact: %w", err)
	}
	return nil
}

// Read decodes a bundle from r. Malformed input fails with an
// ArtifactCorrupt error.
func Read(r io.Reader) (*Bundle, error) {
	return read(r, "stream")
}

func read(r io.Reader, name string) (*Bundle, error) {
	const op = "artifact.Read"

	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.NewArtifactCorruptError(op, name, fmt.Errorf("reading header: %w", err))
	}
	if !bytes.Equal(header, []byte(Magic)) {
		return nil, errors.NewArtifactCorruptError(op, name, fmt.Errorf("unexpected header %q", header))
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.NewArtifactCorruptError(op, name, err)
	}
	defer zr.Close()

	var b Bundle
	if err := gob.NewDecoder(zr).Decode(&b); err != nil {
		return nil, errors.NewArtifactCorruptError(op, name, err)
	}
	if err := b.validate(); err != nil {
		return nil, errors.NewArtifactCorruptError(op, name, err)
	}
	return &b, nil
}

// Save writes b to path, creating parent directories. The file is written
// to a temporary name in the same directory and renamed into place.
func Save(path string, b *Bundle) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temporary artifact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, b); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming artifact: %w", err)
	}
	return nil
}

// Load reads the bundle at path. A missing file fails with an
// ArtifactNotFound error, malformed content with ArtifactCorrupt.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewArtifactNotFoundError("artifact.Load", path, err)
	}
	defer f.Close()

	return read(f, path)
}

// DefaultPath returns the conventional artifact path for kind under dir.
func DefaultPath(dir string, kind model.Kind) string {
	return filepath.Join(dir, string(kind)+Extension)
}
