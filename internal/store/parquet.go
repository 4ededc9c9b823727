package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"
)

// columnsMetaKey holds the ordered column list in the file key/value
// metadata. Parquet groups sort their fields by name, so order and gota
// types are recorded separately.
const columnsMetaKey = "marketml.columns"

// ErrEmptyFrame is returned when encoding a frame without columns.
var ErrEmptyFrame = errors.New("frame has no columns")

// ---------------------------------------------------------------------------
// On-disk column description
// ---------------------------------------------------------------------------

type columnMeta struct {
	Name string      `json:"name"`
	Type series.Type `json:"type"`
}

func leafFor(t series.Type) parquet.Node {
	switch t {
	case series.Float:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case series.Int:
		return parquet.Optional(parquet.Int(64))
	case series.Bool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// EncodeFrame serializes df into a single Parquet file image. Missing values
// are written as Parquet nulls.
func EncodeFrame(df dataframe.DataFrame) ([]byte, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("encoding frame: %w", df.Err)
	}
	names := df.Names()
	if len(names) == 0 {
		return nil, ErrEmptyFrame
	}
	types := df.Types()

	cols := make([]columnMeta, len(names))
	group := make(parquet.Group, len(names))
	for i, name := range names {
		cols[i] = columnMeta{Name: name, Type: types[i]}
		group[name] = leafFor(types[i])
	}
	schema := parquet.NewSchema("dataset", group)

	meta, err := json.Marshal(cols)
	if err != nil {
		return nil, err
	}

	index := columnIndex(schema)
	rows := make([]parquet.Row, df.Nrow())
	for r := range rows {
		rows[r] = make(parquet.Row, len(names))
	}
	for _, col := range cols {
		s := df.Col(col.Name)
		idx := index[col.Name]
		for r := 0; r < s.Len(); r++ {
			v, err := valueOf(s.Elem(r), col.Type)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", col.Name, r, err)
			}
			if v.IsNull() {
				rows[r][idx] = v.Level(0, 0, idx)
			} else {
				rows[r][idx] = v.Level(0, 1, idx)
			}
		}
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.KeyValueMetadata(columnsMetaKey, string(meta)))
	if len(rows) > 0 {
		if _, err := w.WriteRows(rows); err != nil {
			return nil, fmt.Errorf("writing rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}
	return buf.Bytes(), nil
}

func valueOf(e series.Element, t series.Type) (parquet.Value, error) {
	if e.IsNA() {
		return parquet.NullValue(), nil
	}
	switch t {
	case series.Float:
		return parquet.ValueOf(e.Float()), nil
	case series.Int:
		n, err := e.Int()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ValueOf(int64(n)), nil
	case series.Bool:
		b, err := e.Bool()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ValueOf(b), nil
	default:
		return parquet.ValueOf(e.String()), nil
	}
}

// columnIndex maps leaf names to their column index in the schema.
func columnIndex(schema *parquet.Schema) map[string]int {
	paths := schema.Columns()
	index := make(map[string]int, len(paths))
	for i, path := range paths {
		if len(path) > 0 {
			index[path[len(path)-1]] = i
		}
	}
	return index
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// DecodeFrame parses a Parquet file image produced by EncodeFrame. Files
// without column metadata are accepted; their column types are inferred
// from the stored values and their order follows the schema.
func DecodeFrame(data []byte) (dataframe.DataFrame, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("opening parquet: %w", err)
	}
	index := columnIndex(f.Schema())

	var cols []columnMeta
	if raw, ok := f.Lookup(columnsMetaKey); ok {
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("parsing column metadata: %w", err)
		}
	} else {
		for _, path := range f.Schema().Columns() {
			cols = append(cols, columnMeta{Name: path[len(path)-1]})
		}
	}

	// records[c] collects the text form of column c; "NaN" marks a missing
	// value, which gota reads back as NA for every series type.
	records := make([][]string, len(cols))
	inferred := make([]series.Type, len(cols))
	pos := make(map[int]int, len(cols))
	for c, col := range cols {
		idx, ok := index[col.Name]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("column %s missing from schema", col.Name)
		}
		pos[idx] = c
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				for _, v := range row {
					c, ok := pos[v.Column()]
					if !ok {
						continue
					}
					text, kind := textOf(v)
					if inferred[c] == "" && kind != "" {
						inferred[c] = kind
					}
					records[c] = append(records[c], text)
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return dataframe.DataFrame{}, fmt.Errorf("reading rows: %w", err)
			}
		}
		rows.Close()
	}

	out := make([]series.Series, len(cols))
	for c, col := range cols {
		t := col.Type
		if t == "" {
			t = inferred[c]
		}
		if t == "" {
			t = series.String
		}
		vals := records[c]
		if vals == nil {
			vals = []string{}
		}
		out[c] = series.New(vals, t, col.Name)
	}
	df := dataframe.New(out...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("building frame: %w", df.Err)
	}
	return df, nil
}

func textOf(v parquet.Value) (string, series.Type) {
	if v.IsNull() {
		return "NaN", ""
	}
	switch v.Kind() {
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64), series.Float
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32), series.Float
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10), series.Int
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10), series.Int
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean()), series.Bool
	default:
		return string(v.ByteArray()), series.String
	}
}
