package dataset

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{
			name: "full descriptor",
			d:    Descriptor{Type: TypeRaw, Symbol: "aapl", Mode: "intraday", Interval: "5min", OutputSize: "compact", Version: "20240101120000"},
			want: filepath.Join("/data", "raw", "AAPL", "intraday", "5min", "compact", "20240101120000.parquet"),
		},
		{
			name: "optional parts omitted",
			d:    Descriptor{Type: TypeFeatures, Symbol: "MSFT", Mode: "daily", Version: "v1"},
			want: filepath.Join("/data", "features", "MSFT", "daily", "v1.parquet"),
		},
		{
			name: "defaults",
			d:    Descriptor{Type: TypeRaw, Symbol: "GOOG"},
			want: filepath.Join("/data", "raw", "GOOG", "default", "latest.parquet"),
		},
		{
			name: "sanitized parts",
			d:    Descriptor{Type: TypeRaw, Symbol: " tsla ", Mode: "Daily Adjusted", Interval: "1/min", OutputSize: `Full\Size`},
			want: filepath.Join("/data", "raw", "TSLA", "dailyadjusted", "1-min", "full-size", "latest.parquet"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathFor("/data", tt.d)
			if err != nil {
				t.Fatalf("PathFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("PathFor mismatch:\n  got  %s\n  want %s", got, tt.want)
			}
		})
	}
}

func TestKeyFor(t *testing.T) {
	d := Descriptor{Type: TypeRaw, Symbol: "AAPL", Mode: "intraday", Interval: "5min", Version: "20240101120000"}

	got, err := KeyFor("ML Data", d)
	if err != nil {
		t.Fatalf("KeyFor: %v", err)
	}
	want := "mldata/raw/AAPL/intraday/5min/20240101120000.parquet"
	if got != want {
		t.Errorf("KeyFor = %q, want %q", got, want)
	}

	got, err = KeyFor("", d)
	if err != nil {
		t.Fatalf("KeyFor: %v", err)
	}
	if strings.HasPrefix(got, "/") {
		t.Errorf("KeyFor with empty prefix should not start with a slash: %q", got)
	}
}

func TestDescriptorErrors(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want error
	}{
		{"unknown type", Descriptor{Type: "models", Symbol: "AAPL"}, ErrUnsupportedType},
		{"empty symbol", Descriptor{Type: TypeRaw, Symbol: "  "}, ErrInvalidDescriptor},
		{"symbol with separator", Descriptor{Type: TypeRaw, Symbol: "A/B"}, ErrInvalidDescriptor},
		{"version with separator", Descriptor{Type: TypeRaw, Symbol: "AAPL", Version: "../x"}, ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PathFor("/data", tt.d); !errors.Is(err, tt.want) {
				t.Errorf("PathFor error = %v, want %v", err, tt.want)
			}
			if _, err := KeyFor("p", tt.d); !errors.Is(err, tt.want) {
				t.Errorf("KeyFor error = %v, want %v", err, tt.want)
			}
			_, err := PathFor("/data", tt.d)
			if !IsConfigError(err) {
				t.Errorf("IsConfigError(%v) = false, want true", err)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"Intra Day": "intraday",
		"1/min":     "1-min",
		`a\b`:       "a-b",
		"":          "",
		"FULL":      "full",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

// The local path below the data root and the remote key below the prefix
// must always name the same segments.
func TestPathAndKeyAgree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	segment := gen.OneGenOf(gen.Const(""), gen.AlphaString(), gen.Const("1/min"), gen.Const("Daily Adj"))

	properties.Property("path suffix equals key suffix", prop.ForAll(
		func(symbol, mode, interval, size, version string, features bool) bool {
			typ := TypeRaw
			if features {
				typ = TypeFeatures
			}
			d := Descriptor{Type: typ, Symbol: symbol, Mode: mode, Interval: interval, OutputSize: size, Version: version}

			path, perr := PathFor("/root", d)
			key, kerr := KeyFor("prefix", d)
			if (perr == nil) != (kerr == nil) {
				return false
			}
			if perr != nil {
				return true
			}

			rel, err := filepath.Rel("/root", path)
			if err != nil {
				return false
			}
			return "prefix/"+filepath.ToSlash(rel) == key
		},
		gen.Identifier(),
		segment,
		segment,
		segment,
		gen.OneGenOf(gen.Const(""), gen.Const("latest"), gen.NumString()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
