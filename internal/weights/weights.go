package weights

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/thyrook/trainkit/internal/optim"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// FormatVersion is written in every weights file header
const FormatVersion = "1.0"

// Metadata is the header of a weights file
type Metadata struct {
	Version string
	Count   int
}

// record is one named tensor in a weights file
type record struct {
	Name  string
	Shape tensor.Shape
	Data  []float64
}

// Save writes the values of params to path.
// Frozen params are saved too; freezing only affects training.
func Save(path string, params []optim.NamedParam) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := gob.NewEncoder(f)

	if err := encoder.Encode(Metadata{Version: FormatVersion, Count: len(params)}); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	for _, p := range params {
		val := p.Node.Value()
		if val == nil {
			return fmt.Errorf("weight %s has nil value", p.Name)
		}
		data, ok := val.Data().([]float64)
		if !ok {
			return fmt.Errorf("weight %s: unsupported data type %T", p.Name, val.Data())
		}

		rec := record{Name: p.Name, Shape: val.Shape().Clone(), Data: data}
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode weight %s: %w", p.Name, err)
		}
	}

	return f.Sync()
}

// LoadMatching loads the weights in path whose names appear in params.
// Names present only in the file are ignored; a name present in both must
// have the same shape. It returns the names that were loaded, in file order.
func LoadMatching(path string, params []optim.NamedParam) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	decoder := gob.NewDecoder(f)

	var meta Metadata
	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported weights version: %s", meta.Version)
	}

	byName := make(map[string]*gorgonia.Node, len(params))
	for _, p := range params {
		byName[p.Name] = p.Node
	}

	var loaded []string
	for i := 0; i < meta.Count; i++ {
		var rec record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return loaded, fmt.Errorf("weights file truncated after %d of %d records", i, meta.Count)
			}
			return loaded, fmt.Errorf("failed to decode weight %d: %w", i, err)
		}

		node, ok := byName[rec.Name]
		if !ok {
			continue
		}
		if !node.Shape().Eq(rec.Shape) {
			return loaded, fmt.Errorf("weight %s: shape mismatch, model %v, file %v", rec.Name, node.Shape(), rec.Shape)
		}

		t := tensor.New(tensor.WithShape(rec.Shape...), tensor.WithBacking(rec.Data))
		if err := gorgonia.Let(node, t); err != nil {
			return loaded, fmt.Errorf("failed to set weight %s: %w", rec.Name, err)
		}
		loaded = append(loaded, rec.Name)
	}

	return loaded, nil
}
