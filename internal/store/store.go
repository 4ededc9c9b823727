// Package store persists tabular frames on the local filesystem. Parquet is
// the cache format; CSV is accepted for command-line input and output.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteFrameFile encodes df as Parquet and writes it to path.
func WriteFrameFile(path string, df dataframe.DataFrame) error {
	data, err := EncodeFrame(df)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// ReadFrameFile reads a Parquet file written by WriteFrameFile.
func ReadFrameFile(path string) (dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df, err := DecodeFrame(data)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return df, nil
}

// ReadFrame loads a frame from a .csv or .parquet file, chosen by extension.
func ReadFrame(path string) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		defer f.Close()
		df := dataframe.ReadCSV(f)
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("reading %s: %w", path, df.Err)
		}
		return df, nil
	case ".parquet":
		return ReadFrameFile(path)
	default:
		return dataframe.DataFrame{}, fmt.Errorf("unsupported file extension for %s", path)
	}
}

// WriteFrame writes df to a .csv or .parquet file, chosen by extension.
func WriteFrame(path string, df dataframe.DataFrame) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := df.WriteCSV(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return f.Close()
	case ".parquet":
		return WriteFrameFile(path, df)
	default:
		return fmt.Errorf("unsupported file extension for %s", path)
	}
}
