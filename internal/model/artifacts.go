package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketml/internal/dataset"
	"marketml/internal/domain"
	"marketml/internal/store"
)

// ErrArtifactNotFound is returned when a model or metadata file is absent.
var ErrArtifactNotFound = errors.New("model artifact not found")

const (
	modelExt    = ".model.json"
	metadataExt = ".meta.json"
)

// artifactFile is the on-disk envelope of a fitted model.
type artifactFile struct {
	Model  string          `json:"model"`
	Task   Task            `json:"task"`
	Params json.RawMessage `json:"params"`
}

// Artifacts stores fitted models under Root/<SYMBOL>/<model>/. Dir, when set,
// replaces that per-model directory.
type Artifacts struct {
	Root string
	Dir  string
}

// ModelDir returns the directory holding artifacts for symbol and model.
func (a Artifacts) ModelDir(symbol, name string) string {
	if a.Dir != "" {
		return a.Dir
	}
	return filepath.Join(a.Root, strings.ToUpper(symbol), name)
}

// Save writes the model and its metadata under a timestamp version and again
// as latest. meta gains its version, training time and paths.
func (a Artifacts) Save(m Model, meta *domain.ModelMetadata, now time.Time) error {
	now = now.UTC()
	version := now.Format(dataset.VersionLayout)
	dir := a.ModelDir(meta.Symbol, m.Name())

	meta.Version = version
	meta.TrainedAt = now.Format(time.RFC3339)
	meta.ModelPath = filepath.Join(dir, version+modelExt)
	meta.MetadataPath = filepath.Join(dir, version+metadataExt)

	params, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Name(), err)
	}
	modelData, err := json.MarshalIndent(artifactFile{Model: m.Name(), Task: m.Task(), Params: params}, "", "  ")
	if err != nil {
		return err
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	for _, name := range []string{version, dataset.Latest} {
		if err := store.WriteFile(filepath.Join(dir, name+modelExt), modelData); err != nil {
			return err
		}
		if err := store.WriteFile(filepath.Join(dir, name+metadataExt), metaData); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a model and its metadata. Empty paths resolve to the latest
// artifacts for symbol and name.
func (a Artifacts) Load(symbol, name, modelPath, metaPath string) (Model, domain.ModelMetadata, error) {
	dir := a.ModelDir(symbol, name)
	if modelPath == "" {
		modelPath = filepath.Join(dir, dataset.Latest+modelExt)
	}
	if metaPath == "" {
		metaPath = filepath.Join(dir, dataset.Latest+metadataExt)
	}

	var meta domain.ModelMetadata
	modelData, err := readArtifact(modelPath)
	if err != nil {
		return nil, meta, err
	}
	metaData, err := readArtifact(metaPath)
	if err != nil {
		return nil, meta, err
	}

	var env artifactFile
	if err := json.Unmarshal(modelData, &env); err != nil {
		return nil, meta, fmt.Errorf("decoding %s: %w", modelPath, err)
	}
	m, err := New(env.Model, nil)
	if err != nil {
		return nil, meta, fmt.Errorf("%s: %w", modelPath, err)
	}
	if err := json.Unmarshal(env.Params, m); err != nil {
		return nil, meta, fmt.Errorf("decoding %s params: %w", modelPath, err)
	}
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, meta, fmt.Errorf("decoding %s: %w", metaPath, err)
	}
	return m, meta, nil
}

func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrArtifactNotFound, path)
	}
	return data, err
}

// AppendMetricsLog appends record to the YAML list at path, creating it if
// needed. A file holding a single document is turned into a list.
func AppendMetricsLog(path string, record map[string]any) error {
	var entries []any
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var existing any
		if uerr := yaml.Unmarshal(data, &existing); uerr == nil && existing != nil {
			if list, ok := existing.([]any); ok {
				entries = list
			} else {
				entries = []any{existing}
			}
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	entries = append(entries, record)
	out, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	return store.WriteFile(path, out)
}
