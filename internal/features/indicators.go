// Package features derives technical-indicator columns from OHLCV frames and
// labels them with a prediction target.
package features

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownIndicator is returned when a configured indicator has no
	// implementation.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrInvalidIndicators is returned when the indicators file is malformed.
	ErrInvalidIndicators = errors.New("invalid indicator configuration")
)

// Indicator is one entry of the indicators file.
type Indicator struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

type indicatorsFile struct {
	Indicators []Indicator `yaml:"indicators"`
}

// LoadIndicators reads the YAML indicators file at path. Entries without a
// name are rejected together in one error.
func LoadIndicators(path string) ([]Indicator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("indicators config: %w", err)
	}
	return ParseIndicators(data)
}

// ParseIndicators decodes an indicators document.
func ParseIndicators(data []byte) ([]Indicator, error) {
	var f indicatorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndicators, err)
	}

	var problems []string
	for i := range f.Indicators {
		ind := &f.Indicators[i]
		ind.Name = strings.ToLower(strings.TrimSpace(ind.Name))
		if ind.Name == "" {
			problems = append(problems, fmt.Sprintf("entry %d missing 'name' field", i))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIndicators, strings.Join(problems, "; "))
	}
	return f.Indicators, nil
}

// Validate reports every indicator that has no implementation.
func Validate(indicators []Indicator) error {
	var unknown []string
	for _, ind := range indicators {
		if _, ok := registry[ind.Name]; !ok {
			unknown = append(unknown, ind.Name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownIndicator, strings.Join(unknown, ", "))
	}
	return nil
}

// Names returns the supported indicator names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Parameter helpers
// ---------------------------------------------------------------------------

// intParam reads an integer parameter. YAML decodes whole numbers as int but
// JSON-sourced maps carry float64, so both are accepted.
func intParam(p map[string]any, key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("param %s: %v is not a whole number", key, x)
		}
		n = int(x)
	default:
		return 0, fmt.Errorf("param %s: unsupported value %v", key, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("param %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func floatParam(p map[string]any, key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("param %s: unsupported value %v", key, v)
	}
}
