// Package dataset implements the versioned dataset cache: descriptors map to
// Parquet artifacts on the local filesystem, optionally mirrored to a remote
// blob store, with a "latest" alias per descriptor prefix.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Configuration errors. They are returned immediately and never retried.
var (
	ErrUnsupportedType   = errors.New("unsupported dataset type")
	ErrInvalidDescriptor = errors.New("invalid dataset descriptor")
	ErrInvalidFraction   = errors.New("test fraction must be between 0 and 1")
)

// Type selects the top-level bucket an artifact lives in.
type Type string

const (
	TypeRaw      Type = "raw"
	TypeFeatures Type = "features"
)

// buckets maps each known type to its directory and key segment.
var buckets = map[Type]string{
	TypeRaw:      "raw",
	TypeFeatures: "features",
}

const (
	// Latest is the alias version rewritten on every save.
	Latest = "latest"

	// DefaultMode is used when a descriptor leaves Mode empty.
	DefaultMode = "default"

	// VersionLayout formats generated version tags (UTC).
	VersionLayout = "20060102150405"

	fileExt = ".parquet"
)

// Descriptor identifies one artifact. An empty Version means Latest when
// reading and a fresh timestamp when writing.
type Descriptor struct {
	Type       Type
	Symbol     string
	Mode       string
	Interval   string
	OutputSize string
	Version    string
}

// WithVersion returns a copy of d pinned to version v.
func (d Descriptor) WithVersion(v string) Descriptor {
	d.Version = v
	return d
}

func (d Descriptor) String() string {
	segs, err := d.segments()
	if err != nil {
		return fmt.Sprintf("%s/%s", d.Type, d.Symbol)
	}
	return strings.Join(append(segs, d.readVersion()), "/")
}

// Sanitize normalizes one path segment: spaces are removed, slashes and
// backslashes become dashes, and the result is lower-cased.
func Sanitize(part string) string {
	part = strings.ReplaceAll(part, " ", "")
	part = strings.ReplaceAll(part, "/", "-")
	part = strings.ReplaceAll(part, `\`, "-")
	return strings.ToLower(part)
}

// segments returns the ordered, sanitized directory segments shared by the
// local path and the remote key.
func (d Descriptor) segments() ([]string, error) {
	bucket, ok := buckets[d.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, d.Type)
	}

	symbol := strings.ToUpper(strings.TrimSpace(d.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidDescriptor)
	}
	if strings.ContainsAny(symbol, `/\`) || symbol == "." || symbol == ".." {
		return nil, fmt.Errorf("%w: symbol %q", ErrInvalidDescriptor, d.Symbol)
	}

	mode := Sanitize(d.Mode)
	if mode == "" {
		mode = DefaultMode
	}

	segs := []string{bucket, symbol, mode}
	if v := Sanitize(d.Interval); v != "" {
		segs = append(segs, v)
	}
	if v := Sanitize(d.OutputSize); v != "" {
		segs = append(segs, v)
	}
	return segs, nil
}

func (d Descriptor) readVersion() string {
	if d.Version == "" {
		return Latest
	}
	return d.Version
}

func validateVersion(v string) error {
	if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
		return fmt.Errorf("%w: version %q", ErrInvalidDescriptor, v)
	}
	return nil
}

// PathFor returns the local file path for d under dataDir.
func PathFor(dataDir string, d Descriptor) (string, error) {
	segs, err := d.segments()
	if err != nil {
		return "", err
	}
	v := d.readVersion()
	if err := validateVersion(v); err != nil {
		return "", err
	}
	parts := append([]string{dataDir}, segs...)
	parts = append(parts, v+fileExt)
	return filepath.Join(parts...), nil
}

// KeyFor returns the remote object key for d. The prefix is sanitized like
// any other segment and omitted when empty.
func KeyFor(prefix string, d Descriptor) (string, error) {
	segs, err := d.segments()
	if err != nil {
		return "", err
	}
	v := d.readVersion()
	if err := validateVersion(v); err != nil {
		return "", err
	}
	var parts []string
	if p := Sanitize(prefix); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, segs...)
	parts = append(parts, v+fileExt)
	return strings.Join(parts, "/"), nil
}

// IsConfigError reports whether err stems from a malformed descriptor or
// argument rather than from I/O.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrInvalidDescriptor) ||
		errors.Is(err, ErrInvalidFraction)
}
